// Package compression produces precompressed siblings of published files,
// so static servers can answer Accept-Encoding without compressing on the fly.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Supported encodings.
const (
	Gzip = "gzip"
	Zstd = "zstd"
)

// minSize is the smallest input worth compressing.
const minSize = 128

// Ext returns the file extension of a sibling in encoding.
func Ext(encoding string) string {
	switch encoding {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	}
	return ""
}

type Compressor struct {
	encodings []string
	gzipLevel int
	encoder   *zstd.Encoder
}

// NewCompressor returns a compressor for the given encodings. level ranges
// from 1 (fastest) to 3 (best compression).
func NewCompressor(level int, encodings ...string) (*Compressor, error) {
	c := &Compressor{gzipLevel: gzip.DefaultCompression}

	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
		c.gzipLevel = gzip.BestSpeed
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
		c.gzipLevel = gzip.BestCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	for _, enc := range encodings {
		switch enc {
		case Gzip:
		case Zstd:
			if c.encoder != nil {
				continue
			}
			encoder, err := zstd.NewWriter(nil,
				zstd.WithEncoderLevel(encoderLevel),
				zstd.WithEncoderConcurrency(1),
			)
			if err != nil {
				return nil, err
			}
			c.encoder = encoder
		default:
			return nil, fmt.Errorf("unknown encoding %q", enc)
		}
		c.encodings = append(c.encodings, enc)
	}
	return c, nil
}

// Encodings returns the configured encodings.
func (c *Compressor) Encodings() []string { return c.encodings }

// Compress encodes data. It reports false when the result would not be
// smaller than data, in which case no sibling should be written.
func (c *Compressor) Compress(encoding string, data []byte) ([]byte, bool, error) {
	if len(data) < minSize {
		return nil, false, nil
	}

	var compressed []byte
	switch encoding {
	case Zstd:
		if c.encoder == nil {
			return nil, false, fmt.Errorf("encoding %s not configured", encoding)
		}
		compressed = c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	case Gzip:
		var buf bytes.Buffer
		w, err := gzip.NewWriterLevel(&buf, c.gzipLevel)
		if err != nil {
			return nil, false, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, false, err
		}
		if err := w.Close(); err != nil {
			return nil, false, err
		}
		compressed = buf.Bytes()
	default:
		return nil, false, fmt.Errorf("unknown encoding %q", encoding)
	}

	if len(compressed) >= len(data) {
		return nil, false, nil
	}
	return compressed, true, nil
}

// Decompress reverses Compress.
func Decompress(encoding string, data []byte) ([]byte, error) {
	switch encoding {
	case Zstd:
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer decoder.Close()
		return decoder.DecodeAll(data, nil)
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return nil, fmt.Errorf("unknown encoding %q", encoding)
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	return nil
}
