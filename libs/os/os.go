package os

import (
	"fmt"
	"os"
)

// EnsureDir ensures the given directory exists, creating it and any missing
// parents with the given mode if necessary.
func EnsureDir(dir string, mode os.FileMode) error {
	err := os.MkdirAll(dir, mode)
	if err != nil {
		return fmt.Errorf("could not create directory %q: %w", dir, err)
	}
	return nil
}

// FileExists reports whether filePath names an existing file or directory.
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}
