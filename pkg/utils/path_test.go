package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		basePath     string
		relativePath string
		expected     string
	}{
		{
			basePath:     "dir/file.html",
			relativePath: "image.jpg",
			expected:     "dir/image.jpg",
		},
		{
			basePath:     "file.html",
			relativePath: "image.jpg",
			expected:     "image.jpg",
		},
		{
			basePath:     "dir/file.html",
			relativePath: "../image.jpg",
			expected:     "image.jpg",
		},
		{
			basePath:     "dir/subdir/file.html",
			relativePath: "../image.jpg",
			expected:     "dir/image.jpg",
		},
		{
			basePath:     "dir/file.html",
			relativePath: "subdir/image.jpg",
			expected:     "dir/subdir/image.jpg",
		},
		{
			basePath:     "dir/file.html",
			relativePath: "image.jpg#fragment",
			expected:     "dir/image.jpg#fragment",
		},
	}

	for _, test := range tests {
		result := ResolvePath(test.basePath, test.relativePath)
		assert.Equal(t, test.expected, result, "ResolvePath(%q, %q)", test.basePath, test.relativePath)
	}
}

func TestJoinEntry(t *testing.T) {
	tests := []struct {
		dir      string
		name     string
		expected string
	}{
		{"OEBPS/Text", "../Images/a.png", "OEBPS/Images/a.png"},
		{"", "a.png", "a.png"},
		{"OEBPS", "./images/a.png", "OEBPS/images/a.png"},
		{"", "../../a.png", "a.png"},
		{"OEBPS/", "/Images/a.png", "OEBPS/Images/a.png"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, JoinEntry(test.dir, test.name), "JoinEntry(%q, %q)", test.dir, test.name)
	}
}

func TestStripFragment(t *testing.T) {
	assert.Equal(t, "a.png", StripFragment("a.png#top"))
	assert.Equal(t, "a.png", StripFragment("a.png?v=2"))
	assert.Equal(t, "a.png", StripFragment("a.png"))
}

func TestByteCountIEC(t *testing.T) {
	assert.Equal(t, "512 B", ByteCountIEC(512))
	assert.Equal(t, "1.0 KiB", ByteCountIEC(1024))
	assert.Equal(t, "1.5 MiB", ByteCountIEC(1536*1024))
}
