// Package snapshot persists last-known-good dependency responses so that
// fallbacks can serve them when an upstream is unavailable.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/types"
)

// Backend names accepted in config.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
	BackendNone   = "none"
)

// New builds the store selected by cfg.Backend. now may be nil.
func New(cfg config.SnapshotConfig, logger *slog.Logger, now func() time.Time) (types.SnapshotStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}

	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(cfg.Memory, logger, now)
	case BackendRedis:
		return NewRedisStore(cfg.Redis, logger, now)
	case BackendSQL:
		return NewSQLStore(cfg.SQL, logger, now)
	case BackendNone:
		return NewDisabledStore(), nil
	default:
		return nil, fmt.Errorf("snapshot: unknown backend %q", cfg.Backend)
	}
}

// envelope layout: 8 bytes of big-endian unix nanos, then the value.
const envelopeHeader = 8

func wrap(value []byte, savedAt time.Time) []byte {
	buf := make([]byte, envelopeHeader+len(value))
	binary.BigEndian.PutUint64(buf, uint64(savedAt.UnixNano()))
	copy(buf[envelopeHeader:], value)
	return buf
}

func unwrap(data []byte) (types.Snapshot, error) {
	if len(data) < envelopeHeader {
		return types.Snapshot{}, fmt.Errorf("snapshot: truncated entry (%d bytes)", len(data))
	}
	value := make([]byte, len(data)-envelopeHeader)
	copy(value, data[envelopeHeader:])
	return types.Snapshot{
		Value:   value,
		SavedAt: time.Unix(0, int64(binary.BigEndian.Uint64(data))),
	}, nil
}
