// Package codec compresses values held in the L2 tier.
package codec

import (
	"fmt"
	"sync"
)

// Codec compresses and decompresses whole values.
type Codec interface {
	// Encode returns a compressed copy of src.
	Encode(src []byte) ([]byte, error)
	// Decode returns the decompressed copy of src.
	Decode(src []byte) ([]byte, error)
	// Name identifies the codec in config and stats (e.g. "zstd").
	Name() string
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() (Codec, error){
		"zstd": func() (Codec, error) { return NewZstd() },
		"s2":   func() (Codec, error) { return NewS2(), nil },
		"gzip": func() (Codec, error) { return NewGzip(), nil },
		"none": func() (Codec, error) { return None{}, nil },
		"":     func() (Codec, error) { return NewZstd() },
	}
)

// Register makes a codec available to ByName.
func Register(name string, factory func() (Codec, error)) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// ByName returns the codec configured under name. The empty name selects zstd.
func ByName(name string) (Codec, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	return factory()
}

// None stores values uncompressed.
type None struct{}

func (None) Encode(src []byte) ([]byte, error) {
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst, nil
}

func (None) Decode(src []byte) ([]byte, error) {
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst, nil
}

func (None) Name() string { return "none" }
