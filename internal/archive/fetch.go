// Package archive downloads and unpacks the sample log archives.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tinytelemetry/pipecheck/internal/progress"
)

// Status describes what Fetch did.
type Status int

const (
	Downloaded Status = iota
	ArchivePresent
	AlreadyExtracted
)

func (s Status) String() string {
	switch s {
	case Downloaded:
		return "downloaded"
	case ArchivePresent:
		return "archive-present"
	case AlreadyExtracted:
		return "already-extracted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// FetchResult is the outcome of one Fetch. Path is empty for AlreadyExtracted.
type FetchResult struct {
	Path   string
	Status Status
}

// NeedsExtract reports whether the result points at an archive to unpack.
func (r FetchResult) NeedsExtract() bool {
	return r.Path != "" && r.Status != AlreadyExtracted
}

// DownloadError reports a failed download. It is never retried.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("archive: download %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("archive: download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Fetcher downloads archives into a cache directory.
type Fetcher struct {
	Client   Doer
	Observer progress.Observer
}

// NewFetcher returns a Fetcher using http.DefaultClient.
func NewFetcher(obs progress.Observer) *Fetcher {
	return &Fetcher{Client: http.DefaultClient, Observer: obs}
}

// FileName returns the archive file name of rawURL, ignoring the query string.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("archive: parse url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("archive: no file name in %q", rawURL)
	}
	return name, nil
}

// BaseName returns the file name up to its first dot ("Linux" for "Linux.tar.gz").
func BaseName(fileName string) string {
	if i := strings.IndexByte(fileName, '.'); i >= 0 {
		return fileName[:i]
	}
	return fileName
}

// Fetch downloads rawURL into cacheDir unless the archive or its extracted
// content is already there. Downloads are written to <name>.part and renamed
// once complete.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, cacheDir string) (FetchResult, error) {
	name, err := FileName(rawURL)
	if err != nil {
		return FetchResult{}, err
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return FetchResult{}, fmt.Errorf("archive: create %s: %w", cacheDir, err)
	}

	dst := filepath.Join(cacheDir, name)
	if _, err := os.Stat(dst); err == nil {
		log.Printf("archive: %s already exists, skipping download", name)
		return FetchResult{Path: dst, Status: ArchivePresent}, nil
	}
	if done, err := extracted(cacheDir, BaseName(name)); err != nil {
		return FetchResult{}, err
	} else if done {
		log.Printf("archive: %s already extracted in %s, skipping download", BaseName(name), cacheDir)
		return FetchResult{Status: AlreadyExtracted}, nil
	}

	log.Printf("archive: downloading %s", name)
	if err := f.download(ctx, rawURL, name, dst); err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Path: dst, Status: Downloaded}, nil
}

// extracted reports whether dir holds a directory named base, or a file whose
// name minus its last extension equals base case-insensitively.
func extracted(dir, base string) (bool, error) {
	if info, err := os.Stat(filepath.Join(dir, base)); err == nil && info.IsDir() {
		return true, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("archive: read %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if strings.EqualFold(stem, base) {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, name, dst string) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &DownloadError{URL: rawURL, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &DownloadError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &DownloadError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", part, err)
	}
	tracker := progress.Begin(f.Observer, name, progress.UnitBytes, resp.ContentLength)
	_, copyErr := io.Copy(out, &progressReader{r: resp.Body, t: tracker})
	tracker.End()
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(part)
		return &DownloadError{URL: rawURL, Err: err}
	}
	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
		return fmt.Errorf("archive: rename %s: %w", part, err)
	}
	return nil
}

type progressReader struct {
	r io.Reader
	t *progress.Tracker
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.t.Add(int64(n))
	}
	return n, err
}
