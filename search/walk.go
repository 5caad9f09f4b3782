package search

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// WalkDir returns the regular files below dir whose extension is in
// extensions, skipping hidden files and directories. A dir that is itself a
// file is returned as-is when its extension matches.
func WalkDir(dir string, extensions []string) ([]string, error) {
	var files []string

	matches := func(path string) bool {
		return slices.Contains(extensions, strings.ToLower(filepath.Ext(path)))
	}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path == dir {
			if d.Type().IsRegular() && matches(path) {
				files = append(files, path)
			}
			return nil
		}

		// Skip hidden files and folders
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type().IsRegular() && matches(path) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return files, nil
}
