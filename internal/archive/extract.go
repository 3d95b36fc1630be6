package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent extractions.
const DefaultWorkers = 3

// ExtractError reports a corrupt or unsafe archive.
type ExtractError struct {
	Path string
	Err  error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("archive: extract %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// Extract unpacks the gzipped tarball at path into destDir.
func Extract(ctx context.Context, path, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return &ExtractError{Path: path, Err: err}
	}
	defer f.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("archive: create %s: %w", destDir, err)
	}
	root, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("archive: resolve %s: %w", destDir, err)
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		return &ExtractError{Path: path, Err: err}
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &ExtractError{Path: path, Err: err}
		}
		target, err := entryPath(root, hdr.Name)
		if err != nil {
			return &ExtractError{Path: path, Err: err}
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("archive: mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return &ExtractError{Path: path, Err: err}
			}
		default:
			log.Printf("archive: %s: skipping %s (type %c)", filepath.Base(path), hdr.Name, hdr.Typeflag)
		}
	}
	return nil
}

func entryPath(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q escapes destination", name)
	}
	return target, nil
}

func writeEntry(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ExtractAll unpacks every archive in paths into destDir using at most
// workers goroutines. One failure does not stop the others; all failures are
// joined into the returned error. With remove set, each archive is deleted
// after it extracts cleanly.
func ExtractAll(ctx context.Context, paths []string, destDir string, workers int, remove bool) error {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(workers)
	for _, p := range paths {
		g.Go(func() error {
			log.Printf("archive: extracting %s", filepath.Base(p))
			if err := Extract(ctx, p, destDir); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			log.Printf("archive: extracted %s", filepath.Base(p))
			if remove {
				if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
					log.Printf("archive: remove %s: %v", p, err)
				} else {
					log.Printf("archive: removed %s", filepath.Base(p))
				}
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}
