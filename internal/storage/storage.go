// Package storage defines the record store used by the persistence adapter.
package storage

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"ai-voice-bridge-service/internal/observability/logging"
)

// Store inserts emergency rows. Rows are maps with keys among location,
// emergency, mobile_no and model_response.
type Store interface {
	Insert(ctx context.Context, row map[string]any) error
	Health(ctx context.Context) Health
	Close()
}

// Health is the result of a storage probe.
type Health struct {
	OK     bool   `json:"ok"`
	Table  string `json:"table"`
	Driver string `json:"driver"`
	Error  string `json:"error,omitempty"`
}

// LogStore is used when storage is disabled: rows are logged and kept in
// memory so they can be inspected.
type LogStore struct {
	table  string
	logger zerolog.Logger

	mu   sync.Mutex
	rows []map[string]any
}

// NewLogStore returns a store that only logs rows.
func NewLogStore(table string) *LogStore {
	return &LogStore{
		table:  table,
		logger: logging.WithComponent("storage"),
	}
}

func (s *LogStore) Insert(ctx context.Context, row map[string]any) error {
	s.logger.Info().
		Str("table", s.table).
		Interface("row", row).
		Msg("Storage disabled, logging row")
	s.mu.Lock()
	s.rows = append(s.rows, row)
	s.mu.Unlock()
	return nil
}

func (s *LogStore) Health(ctx context.Context) Health {
	return Health{OK: true, Table: s.table, Driver: "log"}
}

func (s *LogStore) Close() {}

// Rows returns the rows logged so far.
func (s *LogStore) Rows() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.rows...)
}
