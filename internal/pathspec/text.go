package pathspec

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"
)

// sniffLen is how much of a file is searched for NUL bytes.
const sniffLen = 8 * 1024

// IsText reports whether the file at path is UTF-8 text: no NUL bytes in
// the first 8 KiB and valid encoding throughout. Empty files are text.
func IsText(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if bytes.IndexByte(data[:min(len(data), sniffLen)], 0) >= 0 {
		return false, nil
	}
	return utf8.Valid(data), nil
}
