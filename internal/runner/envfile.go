package runner

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// RequiredEnv lists the .env keys the pipeline cannot run without.
var RequiredEnv = []string{"ES_ENDPOINT", "ELASTIC_LOGSTASH_API_KEY", "ELASTIC_ADMIN_API_KEY"}

// EnvFile manages the compose project's .env file for the duration of a run.
type EnvFile struct {
	Path string
}

func (e *EnvFile) backupPath() string  { return e.Path + ".backup" }
func (e *EnvFile) examplePath() string { return e.Path + ".example" }

// Ensure creates the file from its .example sibling when it is missing.
// It reports whether a copy was made.
func (e *EnvFile) Ensure() (bool, error) {
	if _, err := os.Stat(e.Path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if _, err := os.Stat(e.examplePath()); err != nil {
		return false, fmt.Errorf("%s not found and no %s to copy from", e.Path, e.examplePath())
	}
	if err := copyFile(e.examplePath(), e.Path); err != nil {
		return false, err
	}
	return true, nil
}

// Backup copies the file aside so Restore can undo Update.
func (e *EnvFile) Backup() error {
	if err := copyFile(e.Path, e.backupPath()); err != nil {
		return fmt.Errorf("backing up %s: %w", e.Path, err)
	}
	return nil
}

// Restore moves the backup over the file. A missing backup is not an error.
func (e *EnvFile) Restore() (bool, error) {
	if _, err := os.Stat(e.backupPath()); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := os.Rename(e.backupPath(), e.Path); err != nil {
		return false, fmt.Errorf("restoring %s: %w", e.Path, err)
	}
	return true, nil
}

// Read parses the file.
func (e *EnvFile) Read() (map[string]string, error) {
	vars, err := godotenv.Read(e.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", e.Path, err)
	}
	return vars, nil
}

// Check returns the parsed file, or an error naming the first required key
// that is missing or empty.
func (e *EnvFile) Check(required []string) (map[string]string, error) {
	vars, err := e.Read()
	if err != nil {
		return nil, err
	}
	for _, key := range required {
		if strings.TrimSpace(vars[key]) == "" {
			return nil, fmt.Errorf("missing required environment variable %s in %s", key, e.Path)
		}
	}
	return vars, nil
}

// Update replaces the given keys, appending them at the end of the file.
// Other lines, comments included, are kept as they are.
func (e *EnvFile) Update(set map[string]string) error {
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, line := range strings.SplitAfter(string(data), "\n") {
		if line == "" {
			continue
		}
		if key, _, ok := strings.Cut(line, "="); ok {
			if _, replaced := set[strings.TrimSpace(key)]; replaced {
				continue
			}
		}
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteString("\n")
		}
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, set[k])
	}
	if err := os.WriteFile(e.Path, []byte(b.String()), 0o644); err != nil {
		return err
	}

	vars, err := e.Read()
	if err != nil {
		return err
	}
	for k, want := range set {
		if vars[k] != want {
			log.Printf("runner: warning: %s not correctly set in %s", k, e.Path)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
