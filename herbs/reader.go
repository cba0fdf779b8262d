package herbs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// readCatalogFile reads a catalog file and returns its content as UTF-8.
// Files exported by older tools come in ISO-8859-1, so anything that is not
// valid UTF-8 is decoded from Latin-1.
func readCatalogFile(dir, name string) ([]byte, error) {
	path := filepath.Join(dir, filepath.Base(name))

	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	// Strip a UTF-8 byte order mark left by spreadsheet exports
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	if utf8.Valid(raw) {
		return raw, nil
	}

	decoded, err := io.ReadAll(charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s as ISO-8859-1: %w", name, err)
	}
	return decoded, nil
}
