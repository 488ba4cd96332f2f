// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/deusflow/sarawaknews/internal/sources"
	"github.com/deusflow/sarawaknews/internal/storage"
)

// OpenTestStore creates an in-memory SQLite store with the schema applied. It is
// closed when the test ends.
func OpenTestStore(t *testing.T) *storage.Store {
	t.Helper()

	s, err := storage.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// AddSource registers an active source and returns it as stored.
func AddSource(t *testing.T, s *storage.Store, name, url string, alwaysRelevant bool) sources.Source {
	t.Helper()

	ctx := context.Background()
	id, err := s.AddSource(ctx, sources.Source{Name: name, URL: url, Active: true, AlwaysRelevant: alwaysRelevant})
	if err != nil {
		t.Fatalf("add source %s: %v", name, err)
	}
	src, err := s.GetSource(ctx, id)
	if err != nil {
		t.Fatalf("get source %d: %v", id, err)
	}
	return src
}
