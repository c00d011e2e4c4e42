package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// runStoreContract checks the behavior every backend must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("MissingKey", func(t *testing.T) {
		got, err := s.Get(ctx, "eventlens:hidden:missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for missing key, got %q", got)
		}
	})

	t.Run("SetAndGet", func(t *testing.T) {
		if err := s.Set(ctx, "eventlens:hidden:e1", []byte(`["a","b"]`)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := s.Get(ctx, "eventlens:hidden:e1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `["a","b"]` {
			t.Errorf("expected stored value, got %q", got)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := s.Set(ctx, "eventlens:hidden:e2", []byte(`["x"]`)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := s.Set(ctx, "eventlens:hidden:e2", []byte(`[]`)); err != nil {
			t.Fatalf("second Set failed: %v", err)
		}
		got, err := s.Get(ctx, "eventlens:hidden:e2")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `[]` {
			t.Errorf("expected overwritten value, got %q", got)
		}
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		got, err := s.Get(ctx, "eventlens:hidden:e1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `["a","b"]` {
			t.Errorf("writing e2 changed e1: %q", got)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore()
	value := []byte("abc")
	if err := s.Set(context.Background(), "k", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value[0] = 'z'

	got, _ := s.Get(context.Background(), "k")
	if string(got) != "abc" {
		t.Errorf("caller mutation leaked into store: %q", got)
	}
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	runStoreContract(t, s)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := first.Set(context.Background(), "eventlens:hidden:e1", []byte(`["a"]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	second, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	got, err := second.Get(context.Background(), "eventlens:hidden:e1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `["a"]` {
		t.Errorf("expected value after reopen, got %q", got)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	runStoreContract(t, s)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{"memory", "memory://", nil},
		{"file scheme", "file://" + filepath.Join(dir, "a"), nil},
		{"bare path", filepath.Join(dir, "b"), nil},
		{"sqlite", "sqlite://" + filepath.Join(dir, "c.db"), nil},
		{"unknown", "ftp://example.com", ErrUnsupportedScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, closer, err := Open(context.Background(), tt.url)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer closer.Close()
			if err := s.Set(context.Background(), "k", []byte("v")); err != nil {
				t.Errorf("Set failed: %v", err)
			}
		})
	}
}

func TestOpenRequiresURL(t *testing.T) {
	if _, _, err := Open(context.Background(), ""); err == nil {
		t.Error("expected error for empty URL")
	}
}
