package main

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "arena.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)
	if v := db.GetSetting("missing"); v != "" {
		t.Errorf("unset setting = %q, want empty", v)
	}
	if err := db.SetSetting("k", "one"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting("k", "two"); err != nil {
		t.Fatal(err)
	}
	if v := db.GetSetting("k"); v != "two" {
		t.Errorf("setting = %q, want two", v)
	}
}

func TestBanLifecycle(t *testing.T) {
	db := openTestDB(t)

	banned, err := db.IsBanned("h1")
	if err != nil || banned {
		t.Fatalf("IsBanned before ban = %v, %v", banned, err)
	}
	if err := db.AddBan("h1", "protocol error"); err != nil {
		t.Fatal(err)
	}
	if err := db.AddBan("h1", "second reason"); err != nil {
		t.Fatalf("re-banning should be a no-op: %v", err)
	}
	if err := db.AddBan("h2", "manual"); err != nil {
		t.Fatal(err)
	}

	banned, err = db.IsBanned("h1")
	if err != nil || !banned {
		t.Fatalf("IsBanned after ban = %v, %v", banned, err)
	}

	bans, err := db.ListBans()
	if err != nil {
		t.Fatal(err)
	}
	if len(bans) != 2 {
		t.Fatalf("expected 2 bans, got %d", len(bans))
	}
	for _, b := range bans {
		if b.AddrHash == "h1" && b.Reason != "protocol error" {
			t.Errorf("first reason should be kept, got %q", b.Reason)
		}
		if b.CreatedAt.IsZero() {
			t.Errorf("ban %s has no timestamp", b.AddrHash)
		}
	}

	found, err := db.RemoveBan("h1")
	if err != nil || !found {
		t.Fatalf("RemoveBan = %v, %v", found, err)
	}
	found, err = db.RemoveBan("h1")
	if err != nil || found {
		t.Fatalf("second RemoveBan = %v, %v", found, err)
	}
	if banned, _ := db.IsBanned("h1"); banned {
		t.Error("h1 should no longer be banned")
	}
}

func TestListBansEmpty(t *testing.T) {
	db := openTestDB(t)
	bans, err := db.ListBans()
	if err != nil {
		t.Fatal(err)
	}
	if bans == nil || len(bans) != 0 {
		t.Errorf("expected an empty non-nil list, got %#v", bans)
	}
}
