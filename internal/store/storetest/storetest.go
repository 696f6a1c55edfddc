// Package storetest opens throwaway stores for tests.
package storetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/daicherr/orbis/internal/store"
)

var seq atomic.Int64

// Open returns a private in-memory store closed at test cleanup.
func Open(t testing.TB) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:orbis_test_%d?mode=memory&cache=shared", seq.Add(1))
	s, err := store.Open(context.Background(), dsn, nil)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
