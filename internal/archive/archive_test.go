package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/tinytelemetry/pipecheck/internal/model"
	"github.com/tinytelemetry/pipecheck/internal/progress"
)

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func failingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
		http.Error(w, "no", http.StatusTeapot)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFileName(t *testing.T) {
	t.Parallel()

	got, err := FileName("https://zenodo.org/records/8196385/files/Linux.tar.gz?download=1")
	if err != nil {
		t.Fatalf("FileName: %v", err)
	}
	if got != "Linux.tar.gz" {
		t.Fatalf("FileName = %q, want Linux.tar.gz", got)
	}
	if BaseName(got) != "Linux" {
		t.Fatalf("BaseName = %q, want Linux", BaseName(got))
	}
}

func TestURLs(t *testing.T) {
	t.Parallel()

	all, err := URLs(model.LogTypeAll)
	if err != nil {
		t.Fatalf("URLs(all): %v", err)
	}
	if len(all) != len(model.KnownLogTypes()) {
		t.Fatalf("URLs(all) returned %d urls, want %d", len(all), len(model.KnownLogTypes()))
	}
	mac, err := URLs("MAC")
	if err != nil {
		t.Fatalf("URLs(MAC): %v", err)
	}
	if len(mac) != 1 || mac[0] != loghubBase+"Mac.tar.gz?download=1" {
		t.Fatalf("URLs(MAC) = %v", mac)
	}
	if _, err := URLs("bogus"); err == nil {
		t.Fatal("expected error for unknown log type")
	}
}

func TestFetch_Downloads(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("x"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	rec := &progress.Recorder{}
	f := &Fetcher{Client: srv.Client(), Observer: rec}

	res, err := f.Fetch(context.Background(), srv.URL+"/files/Mac.tar.gz?download=1", dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != Downloaded {
		t.Fatalf("Status = %v, want %v", res.Status, Downloaded)
	}
	if res.Path != filepath.Join(dir, "Mac.tar.gz") {
		t.Fatalf("Path = %q", res.Path)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("downloaded %d bytes, want %d", len(data), len(payload))
	}
	if _, err := os.Stat(res.Path + ".part"); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind: %v", err)
	}

	events := rec.Events()
	if len(events) < 2 {
		t.Fatalf("got %d progress events, want at least 2", len(events))
	}
	last := events[len(events)-1]
	if last.Kind != progress.KindEnd || last.Done != int64(len(payload)) || last.Total != int64(len(payload)) {
		t.Fatalf("last event = %+v", last)
	}
}

func TestFetch_Skips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		setup  func(t *testing.T, dir string)
		status Status
	}{
		{
			name: "archive present",
			setup: func(t *testing.T, dir string) {
				os.WriteFile(filepath.Join(dir, "Linux.tar.gz"), []byte("gz"), 0644)
			},
			status: ArchivePresent,
		},
		{
			name: "extracted directory",
			setup: func(t *testing.T, dir string) {
				os.Mkdir(filepath.Join(dir, "Linux"), 0755)
			},
			status: AlreadyExtracted,
		},
		{
			name: "file with same base name",
			setup: func(t *testing.T, dir string) {
				os.WriteFile(filepath.Join(dir, "linux.log"), []byte("x\n"), 0644)
			},
			status: AlreadyExtracted,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			tt.setup(t, dir)
			srv := failingServer(t)
			f := &Fetcher{Client: srv.Client()}

			res, err := f.Fetch(context.Background(), srv.URL+"/Linux.tar.gz?download=1", dir)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if res.Status != tt.status {
				t.Fatalf("Status = %v, want %v", res.Status, tt.status)
			}
			if tt.status == AlreadyExtracted && res.NeedsExtract() {
				t.Fatal("AlreadyExtracted result should not need extraction")
			}
		})
	}
}

func TestFetch_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	f := &Fetcher{Client: srv.Client()}
	_, err := f.Fetch(context.Background(), srv.URL+"/SSH.tar.gz", dir)
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("Fetch error = %v, want *DownloadError", err)
	}
	if dlErr.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d, want 404", dlErr.StatusCode)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("cache dir has %d entries after failed download, want 0", len(entries))
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "Linux.tar.gz")
	body := tarball(t, map[string]string{"Linux/Linux_2k.log": "a\nb\n"})
	if err := os.WriteFile(src, body, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	dest := filepath.Join(dir, "out")
	if err := Extract(context.Background(), src, dest); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dest, "Linux", "Linux_2k.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "a\nb\n" {
		t.Fatalf("content = %q, want %q", got, "a\nb\n")
	}
}

func TestExtract_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body func(t *testing.T) []byte
	}{
		{name: "corrupt", body: func(t *testing.T) []byte { return []byte("not a gzip stream") }},
		{name: "escaping entry", body: func(t *testing.T) []byte {
			return tarball(t, map[string]string{"../evil.log": "x"})
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			src := filepath.Join(dir, "bad.tar.gz")
			os.WriteFile(src, tt.body(t), 0644)

			err := Extract(context.Background(), src, filepath.Join(dir, "out"))
			var exErr *ExtractError
			if !errors.As(err, &exErr) {
				t.Fatalf("Extract error = %v, want *ExtractError", err)
			}
			if _, err := os.Stat(filepath.Join(dir, "evil.log")); !os.IsNotExist(err) {
				t.Fatal("entry escaped destination")
			}
		})
	}
}

func TestExtractAll_IndependentFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := []string{
		filepath.Join(dir, "Mac.tar.gz"),
		filepath.Join(dir, "SSH.tar.gz"),
	}
	os.WriteFile(good[0], tarball(t, map[string]string{"Mac/Mac_2k.log": "m\n"}), 0644)
	os.WriteFile(good[1], tarball(t, map[string]string{"SSH/SSH_2k.log": "s\n"}), 0644)
	bad := filepath.Join(dir, "Windows.tar.gz")
	os.WriteFile(bad, []byte("garbage"), 0644)

	err := ExtractAll(context.Background(), []string{good[0], bad, good[1]}, dir, 3, true)
	var exErr *ExtractError
	if !errors.As(err, &exErr) {
		t.Fatalf("ExtractAll error = %v, want *ExtractError", err)
	}
	if exErr.Path != bad {
		t.Fatalf("failed path = %q, want %q", exErr.Path, bad)
	}

	for _, f := range []string{"Mac/Mac_2k.log", "SSH/SSH_2k.log"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Fatalf("%s not extracted: %v", f, err)
		}
	}
	for _, p := range good {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s not removed after extraction", p)
		}
	}
	if _, err := os.Stat(bad); err != nil {
		t.Fatalf("failed archive should be kept: %v", err)
	}
}
