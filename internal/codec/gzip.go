package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

var _ Codec = (*Gzip)(nil)

// Gzip compresses with gzip at the given level.
type Gzip struct {
	level int
}

// NewGzip returns a gzip codec at the default compression level.
func NewGzip() *Gzip {
	return &Gzip{level: gzip.DefaultCompression}
}

func (c *Gzip) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Gzip) Decode(src []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (c *Gzip) Name() string { return "gzip" }
