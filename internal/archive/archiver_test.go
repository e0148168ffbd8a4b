package archive

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/imedwei/archive-upload/internal/age"
	"github.com/imedwei/archive-upload/internal/config"
	"github.com/imedwei/archive-upload/internal/metrics"
	"github.com/imedwei/archive-upload/internal/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeAged creates path with content and an mtime of age ago.
func writeAged(t *testing.T, path, content string, fileAge time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-fileAge)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func secs(v float64) *float64 {
	return &v
}

func decompressFile(t *testing.T, codec Codec, path string) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := Decompress(codec, path, &buf); err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	return buf.String()
}

func newTestDir(t *testing.T) config.DirectoryConfig {
	t.Helper()
	root := t.TempDir()
	return config.DirectoryConfig{
		Directory:    filepath.Join(root, "in"),
		ArchiveDir:   filepath.Join(root, "archive"),
		BucketAndKey: "bucket/prefix",
		Compression:  "bzip2",
		FilePatterns: []config.PatternConfig{{Pattern: "*.dat", FinishedSecs: secs(5)}},
	}
}

func TestArchiver_ArchivesFinishedFile(t *testing.T) {
	dir := newTestDir(t)
	src := filepath.Join(dir.Directory, "a.dat")
	writeAged(t, src, "sensor readings\n", 10*time.Second)

	m := metrics.New()
	q := queue.New(nil)
	res := NewArchiver(age.NewModTimeFilter(), m, discardLogger()).Run(context.Background(), []config.DirectoryConfig{dir}, q)

	if res.Archived != 1 || res.Failed != 0 {
		t.Fatalf("Run() = %+v, want 1 archived", res)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source file still exists: %v", err)
	}

	wantEntry := queue.Entry{
		LocalPath:         filepath.Join(dir.ArchiveDir, "a.dat.bz2"),
		RemoteDestination: "bucket/prefix/a.dat.bz2",
	}
	if got := q.Entries(); len(got) != 1 || got[0] != wantEntry {
		t.Errorf("queue = %v, want [%v]", got, wantEntry)
	}

	if got := decompressFile(t, bzip2Codec{}, wantEntry.LocalPath); got != "sensor readings\n" {
		t.Errorf("archive content = %q", got)
	}

	if got := testutil.ToFloat64(m.FilesArchived); got != 1 {
		t.Errorf("FilesArchived = %v, want 1", got)
	}
}

func TestArchiver_LeavesUnfinishedFile(t *testing.T) {
	dir := newTestDir(t)
	dir.FilePatterns[0].FinishedSecs = secs(60)
	src := filepath.Join(dir.Directory, "b.dat")
	writeAged(t, src, "still writing", 30*time.Second)

	q := queue.New(nil)
	res := NewArchiver(age.NewModTimeFilter(), metrics.New(), discardLogger()).ArchiveDirectory(context.Background(), dir, q)

	if res.Skipped != 1 || res.Archived != 0 {
		t.Errorf("ArchiveDirectory() = %+v, want 1 skipped", res)
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("source file touched: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("queue = %v, want empty", q.Entries())
	}
	if _, err := os.Stat(filepath.Join(dir.ArchiveDir, "b.dat.bz2")); !os.IsNotExist(err) {
		t.Errorf("archive created for unfinished file")
	}
}

func TestArchiver_DefaultThreshold(t *testing.T) {
	dir := newTestDir(t)
	dir.FilePatterns[0].FinishedSecs = nil
	writeAged(t, filepath.Join(dir.Directory, "young.dat"), "x", time.Second)
	writeAged(t, filepath.Join(dir.Directory, "old.dat"), "y", 6*time.Second)

	q := queue.New(nil)
	res := NewArchiver(age.NewModTimeFilter(), metrics.New(), discardLogger()).ArchiveDirectory(context.Background(), dir, q)

	if res.Archived != 1 || res.Skipped != 1 {
		t.Errorf("ArchiveDirectory() = %+v, want 1 archived and 1 skipped", res)
	}
	if !q.Contains(filepath.Join(dir.ArchiveDir, "old.dat.bz2")) {
		t.Errorf("queue = %v, want old.dat.bz2", q.Entries())
	}
}

func TestArchiver_WriteFailureLeavesSource(t *testing.T) {
	dir := newTestDir(t)
	src := filepath.Join(dir.Directory, "c.dat")
	writeAged(t, src, "payload", time.Minute)

	// A directory at the destination makes the final rename fail.
	if err := os.MkdirAll(filepath.Join(dir.ArchiveDir, "c.dat.bz2", "blocker"), 0755); err != nil {
		t.Fatal(err)
	}

	m := metrics.New()
	q := queue.New(nil)
	res := NewArchiver(age.NewModTimeFilter(), m, discardLogger()).ArchiveDirectory(context.Background(), dir, q)

	if res.Failed != 1 {
		t.Errorf("ArchiveDirectory() = %+v, want 1 failed", res)
	}
	if data, err := os.ReadFile(src); err != nil || string(data) != "payload" {
		t.Errorf("source file changed: %q, %v", data, err)
	}
	if q.Len() != 0 {
		t.Errorf("queue = %v, want empty", q.Entries())
	}
	if got := testutil.ToFloat64(m.ArchiveFailures); got != 1 {
		t.Errorf("ArchiveFailures = %v, want 1", got)
	}

	entries, err := os.ReadDir(dir.ArchiveDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestArchiver_RecursivePatternAndOrder(t *testing.T) {
	root := t.TempDir()
	first := config.DirectoryConfig{
		Directory:    filepath.Join(root, "first"),
		ArchiveDir:   filepath.Join(root, "first-archive"),
		BucketAndKey: "bucket/one",
		Compression:  "gzip",
		FilePatterns: []config.PatternConfig{
			{Pattern: "**/*.csv", FinishedSecs: secs(1)},
			{Pattern: "*.log", FinishedSecs: secs(1)},
		},
	}
	second := config.DirectoryConfig{
		Directory:    filepath.Join(root, "second"),
		ArchiveDir:   filepath.Join(root, "second-archive"),
		BucketAndKey: "other",
		Compression:  "zstd",
		FilePatterns: []config.PatternConfig{{Pattern: "*", FinishedSecs: secs(1)}},
	}

	writeAged(t, filepath.Join(first.Directory, "2025", "01", "x.csv"), "x", time.Minute)
	writeAged(t, filepath.Join(first.Directory, "y.log"), "y", time.Minute)
	writeAged(t, filepath.Join(second.Directory, "z.bin"), "z", time.Minute)
	if err := os.MkdirAll(filepath.Join(second.Directory, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	q := queue.New(nil)
	res := NewArchiver(age.NewModTimeFilter(), metrics.New(), discardLogger()).
		Run(context.Background(), []config.DirectoryConfig{first, second}, q)

	if res.Archived != 3 {
		t.Fatalf("Run() = %+v, want 3 archived", res)
	}

	want := []queue.Entry{
		{LocalPath: filepath.Join(first.ArchiveDir, "x.csv.gz"), RemoteDestination: "bucket/one/x.csv.gz"},
		{LocalPath: filepath.Join(first.ArchiveDir, "y.log.gz"), RemoteDestination: "bucket/one/y.log.gz"},
		{LocalPath: filepath.Join(second.ArchiveDir, "z.bin.zst"), RemoteDestination: "other/z.bin.zst"},
	}
	got := q.Entries()
	if len(got) != len(want) {
		t.Fatalf("queue = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("queue[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if got := decompressFile(t, zstdCodec{}, want[2].LocalPath); got != "z" {
		t.Errorf("zstd archive content = %q", got)
	}
	if _, err := os.Stat(filepath.Join(second.Directory, "subdir")); err != nil {
		t.Errorf("directory matched by pattern was touched: %v", err)
	}
}

func TestArchiver_SkipsArchiveDirInsideSource(t *testing.T) {
	root := t.TempDir()
	dir := config.DirectoryConfig{
		Directory:    root,
		ArchiveDir:   filepath.Join(root, "archive"),
		BucketAndKey: "bucket",
		Compression:  "bzip2",
		FilePatterns: []config.PatternConfig{{Pattern: "**", FinishedSecs: secs(0)}},
	}
	writeAged(t, filepath.Join(root, "data.txt"), "d", time.Minute)
	writeAged(t, filepath.Join(root, "archive", "old.txt.bz2"), "already archived", time.Minute)

	q := queue.New(nil)
	res := NewArchiver(age.NewModTimeFilter(), metrics.New(), discardLogger()).ArchiveDirectory(context.Background(), dir, q)

	if res.Archived != 1 {
		t.Errorf("ArchiveDirectory() = %+v, want 1 archived", res)
	}
	if _, err := os.Stat(filepath.Join(root, "archive", "old.txt.bz2")); err != nil {
		t.Errorf("existing archive was re-archived: %v", err)
	}
}

func TestArchiver_ArchiveDirLayouts(t *testing.T) {
	tests := []struct {
		name       string
		archiveDir func(root, source string) string
	}{
		{"same as source", func(root, source string) string { return source }},
		{"parent of source", func(root, source string) string { return root }},
		{"sibling of source", func(root, source string) string { return filepath.Join(root, "archive") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			source := filepath.Join(root, "in")
			dir := config.DirectoryConfig{
				Directory:    source,
				ArchiveDir:   tt.archiveDir(root, source),
				BucketAndKey: "bucket/prefix",
				Compression:  "bzip2",
				FilePatterns: []config.PatternConfig{{Pattern: "*", FinishedSecs: secs(5)}},
			}
			src := filepath.Join(source, "a.dat")
			writeAged(t, src, "payload", 10*time.Second)

			q := queue.New(nil)
			res := NewArchiver(age.NewModTimeFilter(), metrics.New(), discardLogger()).ArchiveDirectory(context.Background(), dir, q)

			if res.Archived != 1 {
				t.Fatalf("ArchiveDirectory() = %+v, want 1 archived", res)
			}
			if _, err := os.Stat(src); !os.IsNotExist(err) {
				t.Errorf("source file still exists: %v", err)
			}
			want := queue.Entry{
				LocalPath:         filepath.Join(dir.ArchiveDir, "a.dat.bz2"),
				RemoteDestination: "bucket/prefix/a.dat.bz2",
			}
			if got := q.Entries(); len(got) != 1 || got[0] != want {
				t.Errorf("queue = %v, want [%v]", got, want)
			}

			// A second pass must not archive the archive.
			res = NewArchiver(age.NewModTimeFilter(), metrics.New(), discardLogger()).ArchiveDirectory(context.Background(), dir, q)
			if res.Archived != 0 || q.Len() != 1 {
				t.Errorf("second pass = %+v, queue len %d; want nothing archived", res, q.Len())
			}
		})
	}
}

func TestArchiver_MissingSourceDirectory(t *testing.T) {
	dir := newTestDir(t)

	q := queue.New(nil)
	res := NewArchiver(age.NewModTimeFilter(), metrics.New(), discardLogger()).ArchiveDirectory(context.Background(), dir, q)

	if res != (Result{}) {
		t.Errorf("ArchiveDirectory() = %+v, want zero result", res)
	}
	if _, err := os.Stat(dir.ArchiveDir); err != nil {
		t.Errorf("archive directory not created: %v", err)
	}
}

func TestArchiver_CancelledContext(t *testing.T) {
	dir := newTestDir(t)
	src := filepath.Join(dir.Directory, "a.dat")
	writeAged(t, src, "data", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := queue.New(nil)
	NewArchiver(age.NewModTimeFilter(), metrics.New(), discardLogger()).Run(ctx, []config.DirectoryConfig{dir}, q)

	if _, err := os.Stat(src); err != nil {
		t.Errorf("source touched after cancellation: %v", err)
	}
}

func TestCodecs_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096)

	for _, name := range []string{"bzip2", "gzip", "zstd"} {
		t.Run(name, func(t *testing.T) {
			codec, err := CodecFor(name)
			if err != nil {
				t.Fatalf("CodecFor() error = %v", err)
			}

			var buf bytes.Buffer
			w, err := codec.NewWriter(&buf)
			if err != nil {
				t.Fatalf("NewWriter() error = %v", err)
			}
			if _, err := w.Write(payload); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			r, err := codec.NewReader(&buf)
			if err != nil {
				t.Fatalf("NewReader() error = %v", err)
			}
			defer r.Close()

			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
			}
		})
	}
}

func TestCodecFor(t *testing.T) {
	tests := []struct {
		name    string
		wantExt string
		wantErr bool
	}{
		{"", ".bz2", false},
		{"bzip2", ".bz2", false},
		{"gzip", ".gz", false},
		{"zstd", ".zst", false},
		{"lz4", "", true},
	}

	for _, tt := range tests {
		t.Run("codec="+tt.name, func(t *testing.T) {
			codec, err := CodecFor(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CodecFor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && codec.Extension() != tt.wantExt {
				t.Errorf("Extension() = %v, want %v", codec.Extension(), tt.wantExt)
			}
		})
	}
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		p, dir string
		want   bool
	}{
		{"/data/archive/a.bz2", "/data/archive", true},
		{"/data/archive/sub/a.bz2", "/data/archive/", true},
		{"/data/archived.txt", "/data/archive", false},
		{"/data/a.txt", "/data/archive", false},
		{"/data/archive", "/data/archive", false},
		{"/data", "/data/in", false},
	}

	for _, tt := range tests {
		if got := isWithin(tt.p, tt.dir); got != tt.want {
			t.Errorf("isWithin(%q, %q) = %v, want %v", tt.p, tt.dir, got, tt.want)
		}
	}
}

func TestIsArchiveOutput(t *testing.T) {
	codec := bzip2Codec{}
	tests := []struct {
		name       string
		src        string
		directory  string
		archiveDir string
		want       bool
	}{
		{"nested archive dir", "/data/in/archive/a.dat.bz2", "/data/in", "/data/in/archive", true},
		{"nested archive dir, any file", "/data/in/archive/notes.txt", "/data/in", "/data/in/archive", true},
		{"nested archive dir, source file", "/data/in/a.dat", "/data/in", "/data/in/archive", false},
		{"same dir, archive", "/data/in/a.dat.bz2", "/data/in", "/data/in", true},
		{"same dir, source file", "/data/in/a.dat", "/data/in", "/data/in", false},
		{"same dir, other codec", "/data/in/a.dat.gz", "/data/in", "/data/in", false},
		{"parent dir", "/data/in/a.dat", "/data/in", "/data", false},
		{"parent dir, nested archive name", "/data/in/a.dat.bz2", "/data/in", "/data", false},
		{"sibling dir", "/data/in/a.dat", "/data/in", "/data/archive", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := config.DirectoryConfig{Directory: tt.directory, ArchiveDir: tt.archiveDir}
			if got := isArchiveOutput(tt.src, dir, codec); got != tt.want {
				t.Errorf("isArchiveOutput(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}
