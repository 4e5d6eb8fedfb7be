// Package augur holds shared helpers for reading the delimited metadata and
// sequence files consumed by the subsampling tools. Input files are routinely
// compressed, so readers here transparently detect and unwrap the common
// compression formats before any parsing happens.
package augur

import (
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"io"
	"os"

	"github.com/carbocation/pfx"
	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

// Compression identifies the compression format of an input stream.
type Compression byte

const (
	CompressionUnknown Compression = iota
	CompressionNone
	CompressionGzip
	CompressionZip
	CompressionXZ
	CompressionZlib
	CompressionBzip2
)

// Magic numbers for the compression formats we accept.
var compressionSigs = map[Compression][]byte{
	CompressionGzip:  {0x1f, 0x8b, 0x08},
	CompressionZip:   {0x50, 0x4b, 0x03, 0x04},
	CompressionXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	CompressionZlib:  {0x1f, 0x9d},
	CompressionBzip2: {0x42, 0x5a, 0x68},
}

// DetectCompression reads up to 6 bytes from r and matches them against the
// known signatures. The bytes consumed are not replayed, so callers should
// detect on a stream they can rewind.
func DetectCompression(r io.Reader) (Compression, error) {
	buff := make([]byte, 6)
	n, err := io.ReadAtLeast(r, buff, 1)
	if err == io.EOF {
		// A zero-byte stream has no signature to match. Callers see the
		// emptiness when they parse, with a better message than a bare EOF.
		return CompressionNone, nil
	} else if err != nil {
		return CompressionUnknown, pfx.Err(err)
	}

Sig:
	for format, sig := range compressionSigs {
		if len(sig) > n {
			continue
		}
		for i := range sig {
			if buff[i] != sig[i] {
				continue Sig
			}
		}
		return format, nil
	}

	return CompressionNone, nil
}

// MaybeDecompress wraps f with the appropriate decompressor, if f's leading
// bytes match a known compression signature. Unrecognized content is assumed
// to be uncompressed and handed back as-is.
func MaybeDecompress(f *os.File) (io.ReadCloser, error) {
	format, err := DetectCompression(f)
	if err != nil {
		return nil, err
	}

	// Detection consumed the signature bytes; rewind before decoding.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, pfx.Err(err)
	}

	switch format {
	case CompressionGzip:
		r, err := gzip.NewReader(f)
		if err != nil {
			return nil, pfx.Err(err)
		}
		return r, nil
	case CompressionZip:
		return nopCloser{zipstream.NewReader(f)}, nil
	case CompressionBzip2:
		return nopCloser{bzip2.NewReader(f)}, nil
	case CompressionXZ:
		r, err := xz.NewReader(f, 0)
		if err != nil {
			return nil, pfx.Err(err)
		}
		return nopCloser{r}, nil
	case CompressionZlib:
		r, err := zlib.NewReader(f)
		if err != nil {
			return nil, pfx.Err(err)
		}
		return r, nil
	}

	return f, nil
}

// Open opens path and transparently decompresses it. The returned closer
// closes the underlying file as well as any decompression layer.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	r, err := MaybeDecompress(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if _, isFile := r.(*os.File); isFile {
		return r, nil
	}

	return &layeredCloser{ReadCloser: r, file: f}, nil
}

// nopCloser upgrades readers that have no Close of their own.
type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

// layeredCloser closes a decompression layer and then the file beneath it.
type layeredCloser struct {
	io.ReadCloser
	file *os.File
}

func (l *layeredCloser) Close() error {
	err := l.ReadCloser.Close()
	if ferr := l.file.Close(); err == nil {
		err = ferr
	}
	return err
}
