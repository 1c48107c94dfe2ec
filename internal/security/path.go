package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateOutputPath checks a path the gateway writes to or hands to the
// engine. Absolute paths are fine; traversal segments and NUL bytes are not.
func ValidateOutputPath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}

	for _, segment := range strings.FieldsFunc(filepath.ToSlash(path), func(r rune) bool { return r == '/' }) {
		if segment == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}

	if filepath.Base(filepath.Clean(path)) == string(filepath.Separator) {
		return fmt.Errorf("path points at the filesystem root: %s", path)
	}
	return nil
}
