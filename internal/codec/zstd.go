package codec

import (
	"github.com/klauspost/compress/zstd"
)

// Compile-time check that Zstd implements Codec.
var _ Codec = (*Zstd)(nil)

// Zstd compresses with zstd. Encoder and decoder are safe for concurrent
// EncodeAll/DecodeAll calls and are reused across values.
type Zstd struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstd returns a zstd codec tuned for small JSON payloads.
func NewZstd() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return &Zstd{encoder: enc, decoder: dec}, nil
}

func (c *Zstd) Encode(src []byte) ([]byte, error) {
	return c.encoder.EncodeAll(src, make([]byte, 0, len(src)/2+16)), nil
}

func (c *Zstd) Decode(src []byte) ([]byte, error) {
	return c.decoder.DecodeAll(src, nil)
}

func (c *Zstd) Name() string { return "zstd" }
