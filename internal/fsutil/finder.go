// Package fsutil copies model artifacts and locates config files on disk.
package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// FindFilesByExtension lists the files under root whose name ends in ext,
// sorted by path. Hidden directories such as .git are not descended into.
func FindFilesByExtension(root, ext string) ([]string, error) {
	if ext == "" {
		return nil, errors.New("fsutil: empty extension")
	}

	var found []string
	walk := func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir():
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
		case strings.HasSuffix(d.Name(), ext):
			found = append(found, path)
		}
		return nil
	}
	if err := filepath.WalkDir(root, walk); err != nil {
		return nil, err
	}
	slices.Sort(found)
	return found, nil
}
