// Package archive compresses finished source files into archive directories
// and prunes old archives that are no longer pending upload.
package archive

import (
	"fmt"
	"io"
	"os"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec is a whole-file compression format.
type Codec interface {
	// Name is the configuration name, e.g. "bzip2".
	Name() string

	// Extension is appended to the source file name, e.g. ".bz2".
	Extension() string

	// NewWriter returns a compressing writer. Closing it flushes the stream
	// but does not close w.
	NewWriter(w io.Writer) (io.WriteCloser, error)

	// NewReader returns a decompressing reader over r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// CodecFor returns the codec registered under name.
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", "bzip2":
		return bzip2Codec{}, nil
	case "gzip":
		return gzipCodec{}, nil
	case "zstd":
		return zstdCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", name)
	}
}

type bzip2Codec struct{}

func (bzip2Codec) Name() string      { return "bzip2" }
func (bzip2Codec) Extension() string { return ".bz2" }

func (bzip2Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
}

func (bzip2Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return bzip2.NewReader(r, nil)
}

type gzipCodec struct{}

func (gzipCodec) Name() string      { return "gzip" }
func (gzipCodec) Extension() string { return ".gz" }

func (gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, gzip.DefaultCompression)
}

func (gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

type zstdCodec struct{}

func (zstdCodec) Name() string      { return "zstd" }
func (zstdCodec) Extension() string { return ".zst" }

func (zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

// Decompress writes the decoded content of the archive file at path to w.
func Decompress(codec Codec, path string, w io.Writer) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	r, err := codec.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s header: %w", codec.Name(), err)
	}
	defer r.Close()

	n, err := io.Copy(w, r)
	if err != nil {
		return n, fmt.Errorf("failed to decompress: %w", err)
	}
	return n, nil
}
