// Package locate discovers the line-delimited log files that belong to a log type.
package locate

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tinytelemetry/pipecheck/internal/model"
)

// LogExt is the extension of line-delimited log files, matched case-insensitively.
const LogExt = ".log"

// Finder lists the files for one root directory and log type. List can be
// called repeatedly; every call rescans the file system.
type Finder struct {
	Root string
	Type model.LogType
}

// List implements the forwarder's file lister.
func (f Finder) List() ([]model.LogFileRef, error) {
	return Locate(f.Root, f.Type)
}

// Locate returns the log files under root selected by logType.
//
// For a specific type the first of these that yields files wins:
//  1. a child directory of root named logType (any case): every log file beneath it
//  2. <logType>.log directly in root (any case)
//  3. any log file whose name starts with logType (any case), anywhere under root
//
// LogTypeAll returns every log file under root. In all cases files sharing a
// case-insensitive basename collapse to the first one found in lexical walk
// order. No match yields an empty slice and a nil error.
func Locate(root string, logType model.LogType) ([]model.LogFileRef, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("locate: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("locate: %s is not a directory", root)
	}

	if logType.IsAll() {
		paths, err := walkLogs(root)
		if err != nil {
			return nil, err
		}
		return dedupe(paths), nil
	}

	want := strings.ToLower(string(logType))
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("locate: read %s: %w", root, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() && strings.ToLower(e.Name()) == want {
			sub, err := walkLogs(filepath.Join(root, e.Name()))
			if err != nil {
				return nil, err
			}
			paths = append(paths, sub...)
		}
	}
	if len(paths) > 0 {
		return dedupe(paths), nil
	}

	for _, e := range entries {
		if !e.IsDir() && strings.ToLower(e.Name()) == want+LogExt {
			paths = append(paths, filepath.Join(root, e.Name()))
		}
	}
	if len(paths) > 0 {
		return dedupe(paths), nil
	}

	all, err := walkLogs(root)
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if strings.HasPrefix(strings.ToLower(filepath.Base(p)), want) {
			paths = append(paths, p)
		}
	}
	return dedupe(paths), nil
}

// IsLogFile reports whether name has the log file extension.
func IsLogFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), LogExt)
}

func walkLogs(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			log.Printf("locate: skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() || !IsLogFile(d.Name()) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("locate: walk %s: %w", dir, err)
	}
	return out, nil
}

func dedupeKey(path string) string {
	base := filepath.Base(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

func dedupe(paths []string) []model.LogFileRef {
	refs := make([]model.LogFileRef, 0, len(paths))
	first := make(map[string]string, len(paths))
	dupes := make(map[string]int)
	for _, p := range paths {
		key := dedupeKey(p)
		if _, seen := first[key]; seen {
			dupes[key]++
			continue
		}
		first[key] = p
		refs = append(refs, model.NewLogFileRef(p))
	}
	for key, n := range dupes {
		log.Printf("locate: found %d files with basename %q, using only %s", n+1, key, first[key])
	}
	return refs
}
