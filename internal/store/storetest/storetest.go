// Package storetest builds migrated archives for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/krishhrana/whatsapp-mcp/internal/store"
)

// Base is the instant fixture offsets are measured from.
var Base = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

// At returns Base shifted by d minutes.
func At(minutes int) time.Time {
	return Base.Add(time.Duration(minutes) * time.Minute)
}

// New returns a fully migrated archive in a temp dir.
func New(t *testing.T) *store.DB {
	t.Helper()
	return NewAt(t, 0)
}

// NewAt migrates to version, or to the latest when version is 0.
func NewAt(t *testing.T, version uint) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.MigrateTo(version); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Chat inserts a chat.
func Chat(t *testing.T, db *store.DB, jid, name string, last time.Time) {
	t.Helper()
	if err := db.UpsertChat(context.Background(), store.Chat{JID: jid, Name: name, LastMessageTime: last}); err != nil {
		t.Fatal(err)
	}
}

// Message inserts a message. The chat must exist.
func Message(t *testing.T, db *store.DB, m store.Message) {
	t.Helper()
	if err := db.InsertMessage(context.Background(), m); err != nil {
		t.Fatal(err)
	}
}

// Alias maps alias to canonical.
func Alias(t *testing.T, db *store.DB, alias, canonical string) {
	t.Helper()
	if err := db.UpsertSenderAlias(context.Background(), alias, canonical); err != nil {
		t.Fatal(err)
	}
}

// Reader checks out a connection closed at cleanup.
func Reader(t *testing.T, db *store.DB) *store.Reader {
	t.Helper()
	r, err := db.Reader(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}
