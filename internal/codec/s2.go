package codec

import (
	"github.com/klauspost/compress/s2"
)

var _ Codec = S2{}

// S2 trades ratio for speed. Used for the general-purpose cache.
type S2 struct{}

func NewS2() S2 { return S2{} }

func (S2) Encode(src []byte) ([]byte, error) {
	return s2.Encode(nil, src), nil
}

func (S2) Decode(src []byte) ([]byte, error) {
	return s2.Decode(nil, src)
}

func (S2) Name() string { return "s2" }
