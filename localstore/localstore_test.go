package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestMemory_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := store.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("Get = %q, want %q", got, "v1")
	}

	// Replacing an existing key.
	if err := store.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	got, _ = store.Get(ctx, "k")
	if string(got) != "v2" {
		t.Errorf("Get after replace = %q, want %q", got, "v2")
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}

	// Deleting an absent key is not an error.
	if err := store.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete(absent) returned error: %v", err)
	}
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	_ = store.Put(ctx, "k", []byte("abc"))

	got, _ := store.Get(ctx, "k")
	got[0] = 'x'

	again, _ := store.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated through returned slice: %q", again)
	}
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "teamsync.db")

	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	if err := store.Put(ctx, "teamsync.credential", []byte(`{"access":"a","refresh":"r"}`)); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "teamsync.credential")
	if err != nil {
		t.Fatalf("Get after reopen returned error: %v", err)
	}
	if string(got) != `{"access":"a","refresh":"r"}` {
		t.Errorf("Get after reopen = %q", got)
	}
}

func TestSQLite_DeleteRemovesRow(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	defer store.Close()

	_ = store.Put(ctx, "k", []byte("v"))
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
}
