// Package walker discovers input files under a directory tree.
package walker

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Find returns the absolute path of every regular file under root whose
// extension equals ext, in lexical traversal order.
//
// Behavior:
//   - ext may be given with or without the leading dot; matching is case-sensitive.
//   - A missing or empty root yields an empty result and no error. Reporting
//     a run that found nothing is the caller's job.
//   - Unreadable subdirectories are skipped.
func Find(root, ext string) []string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	var out []string
	_ = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != abs {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if filepath.Ext(path) == ext {
			out = append(out, path)
		}
		return nil
	})
	return out
}
