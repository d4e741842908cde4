// Package discovery enumerates the JSON source files under an input root.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"sparkify/internal/etlerr"
)

const pattern = "**/*.json"

// Discover returns the absolute paths of every regular *.json file under
// root, at any depth, sorted lexicographically by full path.
//
// Hidden files (base name starting with ".") are ignored. A missing root, or
// a root that is not a directory, is a *etlerr.NotFoundError. An empty tree
// yields an empty slice and no error.
func Discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &etlerr.NotFoundError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &etlerr.NotFoundError{Path: root, Err: fmt.Errorf("not a directory")}
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}

	// Globbing relative to an fs.FS keeps metacharacters in root literal.
	matches, err := doublestar.Glob(os.DirFS(abs), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", abs, err)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), ".") {
			continue
		}
		out = append(out, filepath.Join(abs, filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}
