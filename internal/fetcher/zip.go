package fetcher

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIPSingle returns the name and contents of the only file in an
// in-memory ZIP archive. Directory entries and macOS resource forks are
// ignored; the file may not expand beyond maxBytes.
func ExtractZIPSingle(data []byte, maxBytes int64) (string, []byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: open archive")
	}

	var files []*zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") || path.Base(f.Name)[0] == '.' {
			continue
		}
		files = append(files, f)
	}
	if len(files) != 1 {
		return "", nil, eris.Errorf("zip: expected exactly 1 file, got %d", len(files))
	}

	f := files[0]
	rc, err := f.Open()
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	inner, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return "", nil, eris.Wrap(err, "zip: read entry")
	}
	if int64(len(inner)) > maxBytes {
		return "", nil, eris.Wrapf(ErrTooLarge, "zip: %s expands beyond %d bytes", f.Name, maxBytes)
	}
	return path.Base(f.Name), inner, nil
}
