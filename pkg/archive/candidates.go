package archive

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/ray-d-song/bookimg/pkg/utils"
)

// ErrUnsupportedReference is returned for references that point outside the archive
var ErrUnsupportedReference = errors.New("reference is not archive-internal")

// conventionalImageDirs are tried with the bare file name when relative resolution fails
var conventionalImageDirs = []string{
	"images/",
	"Images/",
	"OEBPS/images/",
	"OEBPS/Images/",
	"content/images/",
	"text/images/",
}

// IsRemoteReference reports whether ref is an absolute http(s) URL
func IsRemoteReference(ref string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ref)), "http")
}

type candidateList struct {
	seen  map[string]struct{}
	items []string
}

func (l *candidateList) add(candidate string) {
	if candidate == "" || candidate == "." {
		return
	}
	if _, ok := l.seen[candidate]; ok {
		return
	}
	l.seen[candidate] = struct{}{}
	l.items = append(l.items, candidate)
}

// BuildCandidates returns the archive paths rawRef may refer to, most likely first:
// the reference as written, its URL-decoded form, both joined to the chapter's
// directory, both joined to baseDir, the bare file name under conventional image
// directories, and finally the bare file name alone.
func BuildCandidates(rawRef, chapterPath, baseDir string) ([]string, error) {
	ref := strings.TrimSpace(rawRef)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	if IsRemoteReference(ref) {
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedReference, ref)
	}

	ref = utils.StripFragment(ref)
	decoded, err := url.PathUnescape(ref)
	if err != nil {
		decoded = ref
	}
	forms := []string{ref}
	if decoded != ref {
		forms = append(forms, decoded)
	}

	l := &candidateList{seen: make(map[string]struct{})}

	// (1) verbatim, (2) decoded
	for _, form := range forms {
		l.add(form)
		l.add(strings.TrimPrefix(form, "./"))
	}

	// (3) relative to the referencing chapter
	if chapterPath != "" {
		chapterDir := path.Dir(chapterPath)
		for _, form := range forms {
			l.add(utils.JoinEntry(chapterDir, form))
		}
	}

	// (4) relative to the package base directory
	if baseDir != "" {
		for _, form := range forms {
			l.add(utils.JoinEntry(baseDir, form))
		}
	}

	// (5) conventional image directories
	names := []string{path.Base(ref)}
	if decodedName := path.Base(decoded); decodedName != names[0] {
		names = append(names, decodedName)
	}
	for _, dir := range conventionalImageDirs {
		for _, name := range names {
			l.add(dir + name)
		}
	}

	// (6) bare file name
	for _, name := range names {
		l.add(name)
	}

	return l.items, nil
}

// Resolve finds the canonical entry name for rawRef in idx. Candidates are tried in
// priority order before falling back to a file-name match across all images.
func Resolve(idx *Index, rawRef, chapterPath, baseDir string) (string, error) {
	candidates, err := BuildCandidates(rawRef, chapterPath, baseDir)
	if err != nil {
		return "", err
	}

	if name, ok := idx.FindEntry(candidates...); ok {
		return name, nil
	}

	raw := utils.StripFragment(strings.TrimSpace(rawRef))
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if name, ok := idx.FindByFilename(decoded); ok {
		return name, nil
	}
	if decoded != raw {
		if name, ok := idx.FindByFilename(raw); ok {
			return name, nil
		}
	}

	return "", fmt.Errorf("%w: '%s'", ErrNotFound, rawRef)
}
