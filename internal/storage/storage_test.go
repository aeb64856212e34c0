package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	logx "worldchat/pkg/logx"
)

func exerciseStore(t *testing.T, open func() Store) {
	t.Helper()
	ctx := context.Background()

	st := open()
	if _, err := st.GetProfile(ctx, "42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	p := Profile{ID: "42", DisplayName: "Sylvanas", Affiliation: "horde", Class: "hunter"}
	if err := st.PutProfile(ctx, p); err != nil {
		t.Fatalf("PutProfile: %v", err)
	}
	p.Class = "priest"
	if err := st.PutProfile(ctx, p); err != nil {
		t.Fatalf("PutProfile update: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st = open()
	defer st.Close()
	got, err := st.GetProfile(ctx, "42")
	if err != nil {
		t.Fatalf("GetProfile after reopen: %v", err)
	}
	if got.DisplayName != "Sylvanas" || got.Affiliation != "horde" || got.Class != "priest" || got.UpdatedAt.IsZero() {
		t.Fatalf("unexpected profile: %+v", got)
	}
	if err := st.DeleteProfile(ctx, "42"); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	if _, err := st.GetProfile(ctx, "42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	exerciseStore(t, func() Store {
		st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return st
	})
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldchat.db")
	exerciseStore(t, func() Store {
		st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return st
	})
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if st != nil || err != nil {
		t.Fatalf("disabled storage should return nil, nil")
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}
