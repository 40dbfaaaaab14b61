// Package testutil provides a throwaway in-memory store for tests,
// grounded on the teacher's internal/testing/db.go helper (temp
// database + migration + cleanup func).
package testutil

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/foaggregator/fo-aggregator/internal/store"
)

// NewTestStore returns a fresh in-memory store migrated and ready to
// use, plus a cleanup func the caller should defer.
func NewTestStore(t *testing.T) (*store.Store, func()) {
	t.Helper()

	log := zerolog.Nop()
	s, err := store.New(context.Background(), store.Config{Path: "file::memory:?cache=shared", MaxOpenConns: 1}, log)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	return s, func() { s.Close() }
}
