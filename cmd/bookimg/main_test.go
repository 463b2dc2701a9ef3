package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray-d-song/bookimg/internal/testutil"
)

// setup writes a book and a config pointing the caches into a temp dir
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	configFile := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`[cache]
directory = %q

[log]
level = "error"
directory = ""
`, filepath.Join(dir, "cache"))
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))

	prev := *flags
	flags.config = configFile
	flags.logLevel = ""
	t.Cleanup(func() { *flags = prev })

	return testutil.WriteEPUB(t, dir, "book.epub", []testutil.Chapter{
		{Path: "Text/ch1.xhtml", Title: "One", Images: []string{"../Images/p1.png", "../Images/missing.png", "http://example.com/x.png"}},
		{Path: "Text/ch2.xhtml", Title: "Two", Images: []string{"../Images/p2.png"}},
	}, []testutil.File{
		{Name: "OEBPS/Images/p1.png", Data: testutil.PNG(t, 16, 8, 1)},
		{Name: "OEBPS/Images/p2.png", Data: testutil.PNG(t, 8, 8, 2)},
	})
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestImagesCommand(t *testing.T) {
	book := setup(t)

	out, err := execute(t, "images", book)
	require.NoError(t, err)

	assert.Contains(t, out, "OEBPS/Text/ch1.xhtml")
	assert.Regexp(t, `\.\./Images/p1\.png\s+OEBPS/Images/p1\.png`, out)
	assert.Regexp(t, `\.\./Images/missing\.png\s+\(unresolved\)`, out)
	assert.Regexp(t, `http://example\.com/x\.png\s+\(remote\)`, out)
	assert.Regexp(t, `\.\./Images/p2\.png\s+OEBPS/Images/p2\.png`, out)
}

func TestInfoCommand(t *testing.T) {
	book := setup(t)

	out, err := execute(t, "info", book)
	require.NoError(t, err)

	assert.Regexp(t, `Title:\s+Test Book`, out)
	assert.Regexp(t, `Chapters:\s+2`, out)
	assert.Regexp(t, `Images:\s+2`, out)
	assert.Regexp(t, `References:\s+4`, out)
}

func TestShowCommand(t *testing.T) {
	book := setup(t)

	out, err := execute(t, "show", book, "../Images/p1.png", "--chapter", "0", "--cols", "8", "--rows", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "\x1b[")

	_, err = execute(t, "show", book, "../Images/missing.png", "--chapter", "0", "--cols", "8", "--rows", "4")
	require.Error(t, err)
}

func TestBookArgument(t *testing.T) {
	setup(t)

	_, err := execute(t, "info", filepath.Join(t.TempDir(), "nope.epub"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}

func TestGalleryItems(t *testing.T) {
	book := setup(t)

	a, err := newApp(flags)
	require.NoError(t, err)
	defer a.Close()

	b, err := a.openBook(context.Background(), book)
	require.NoError(t, err)

	items := galleryItems(a, b)
	require.Len(t, items, 3)
	assert.Equal(t, 0, items[0].Chapter)
	assert.Equal(t, "OEBPS/Text/ch1.xhtml", items[0].Request.ChapterPath)
	assert.Equal(t, "OEBPS/", items[0].Request.BaseDir)
	assert.Equal(t, 1, items[2].Chapter)
	assert.Equal(t, "p2.png (ch2.xhtml)", items[2].Label)
}

func TestWarmCommand(t *testing.T) {
	book := setup(t)

	out, err := execute(t, "warm", book)
	require.NoError(t, err)
	assert.Contains(t, out, "Memory: 2 raw")
}
