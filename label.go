package lavender

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// Delimiter separates the published path from the hex digest in an index value.
const Delimiter = ":"

// Label maps an original resource path to its published path and digest.
type Label struct {
	OriginalPath  string
	PublishedPath string
	Digest        Digest
}

// NewLabel returns a label with a private copy of digest.
func NewLabel(original, published string, digest Digest) Label {
	return Label{
		OriginalPath:  original,
		PublishedPath: published,
		Digest:        append(Digest(nil), digest...),
	}
}

func (l Label) Equal(other Label) bool {
	return l.OriginalPath == other.OriginalPath &&
		l.PublishedPath == other.PublishedPath &&
		l.Digest.Equal(other.Digest)
}

func (l Label) String() string {
	return l.OriginalPath + " -> " + l.value()
}

// Validate checks the naming rules enforced by Index.Add.
func (l Label) Validate() error {
	if err := checkPath("originalPath", l.OriginalPath); err != nil {
		return err
	}
	if err := checkPath("publishedPath", l.PublishedPath); err != nil {
		return err
	}
	if strings.Contains(l.PublishedPath, Delimiter) {
		return fmt.Errorf("%w: publishedPath %q contains %q", ErrValidation, l.PublishedPath, Delimiter)
	}
	if len(l.Digest) == 0 {
		return fmt.Errorf("%w: empty digest for %q", ErrValidation, l.OriginalPath)
	}
	return nil
}

// checkPath also rejects invalid UTF-8, which the index file cannot
// represent.
func checkPath(field, p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") || !utf8.ValidString(p) {
		return fmt.Errorf("%w: %s %q", ErrValidation, field, p)
	}
	return nil
}

func (l Label) value() string {
	return l.PublishedPath + Delimiter + l.Digest.Hex()
}

func parseValue(original, value string) (Label, error) {
	published, hexDigest, ok := strings.Cut(value, Delimiter)
	if !ok {
		return Label{}, fmt.Errorf("%w: %s = %s", ErrCorrupt, original, value)
	}
	digest, err := ParseDigest(hexDigest)
	if err != nil {
		return Label{}, fmt.Errorf("%s: %w", original, err)
	}
	return Label{OriginalPath: original, PublishedPath: published, Digest: digest}, nil
}

// Lavendelize embeds the first n hex characters of digest in the file name
// of p: "css/app.css" becomes "css/app-3f2a9c.css". n <= 0 uses the full digest.
func Lavendelize(p string, digest Digest, n int) string {
	h := digest.Hex()
	if n > 0 && n < len(h) {
		h = h[:n]
	}
	dir, base := path.Split(p)
	ext := path.Ext(base)
	if ext == base {
		ext = ""
	}
	return dir + strings.TrimSuffix(base, ext) + "-" + h + ext
}
