package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/krishhrana/whatsapp-mcp/internal/identity"
)

var base = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

func testDB(t *testing.T) *DB {
	t.Helper()
	return testDBAt(t, 0)
}

func testDBAt(t *testing.T, version uint) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.MigrateTo(version); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func reader(t *testing.T, db *DB) *Reader {
	t.Helper()
	r, err := db.Reader(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func seedChat(t *testing.T, db *DB, jid, name string, last time.Time) {
	t.Helper()
	if err := db.UpsertChat(context.Background(), Chat{JID: jid, Name: name, LastMessageTime: last}); err != nil {
		t.Fatal(err)
	}
}

func seedMsg(t *testing.T, db *DB, m Message) {
	t.Helper()
	if err := db.InsertMessage(context.Background(), m); err != nil {
		t.Fatal(err)
	}
}

func ids(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func equalIDs(t *testing.T, got []Message, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("ids = %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("ids = %v, want %v", g, want)
		}
	}
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run is a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + sender aliases)", result.Version)
	}
}

// TestMigrateSchemaMatchesBridge verifies the columns the bridge writes exist.
func TestMigrateSchemaMatchesBridge(t *testing.T) {
	db := testDB(t)

	requiredOps := []struct {
		desc  string
		query string
		args  []any
	}{
		{"insert chat", "INSERT INTO chats (jid, name, last_message_time) VALUES (?, ?, ?)", []any{"c@s.whatsapp.net", "Test", "2026-02-20 12:00:00+00:00"}},
		{"insert media message", `INSERT INTO messages (id, chat_jid, sender, content, timestamp, is_from_me, media_type, filename, url, media_key, file_sha256, file_enc_sha256, file_length)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, []any{"m1", "c@s.whatsapp.net", "c", "", "2026-02-20 12:00:00+00:00", false, "image", "a.jpg", "https://x", []byte{1}, []byte{2}, []byte{3}, 10}},
		{"insert alias", "INSERT INTO sender_id_aliases (alias_id, canonical_id) VALUES (?, ?)", []any{"lid1", "c"}},
	}
	for _, op := range requiredOps {
		t.Run(op.desc, func(t *testing.T) {
			if _, err := db.Exec(op.query, op.args...); err != nil {
				t.Fatalf("%s failed: %v", op.desc, err)
			}
		})
	}
}

func TestMessagesFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedChat(t, db, "alice@s.whatsapp.net", "Alice", at(30))
	seedChat(t, db, "team@g.us", "Team", at(40))

	seedMsg(t, db, Message{ID: "a1", ChatJID: "alice@s.whatsapp.net", SenderID: "alice", Content: "Hello there", Timestamp: at(10)})
	seedMsg(t, db, Message{ID: "a2", ChatJID: "alice@s.whatsapp.net", SenderID: "me", Content: "hi", Timestamp: at(20), IsFromMe: true})
	seedMsg(t, db, Message{ID: "a3", ChatJID: "alice@s.whatsapp.net", SenderID: "alice-lid", Content: "say HELLO", Timestamp: at(30)})
	seedMsg(t, db, Message{ID: "g1", ChatJID: "team@g.us", SenderID: "bob", Content: "50% done_ok", Timestamp: at(40), MediaType: "image"})

	r := reader(t, db)

	tests := []struct {
		name string
		f    MessageFilter
		want []string
	}{
		{"all newest first", MessageFilter{Limit: 10}, []string{"g1", "a3", "a2", "a1"}},
		{"senders", MessageFilter{SenderIDs: []string{"alice", "alice-lid"}, Limit: 10}, []string{"a3", "a1"}},
		{"chat", MessageFilter{ChatJID: "team@g.us", Limit: 10}, []string{"g1"}},
		{"query case-insensitive", MessageFilter{Query: "hello", Limit: 10}, []string{"a3", "a1"}},
		{"query literal percent", MessageFilter{Query: "50%", Limit: 10}, []string{"g1"}},
		{"query literal underscore", MessageFilter{Query: "l_o", Limit: 10}, nil},
		{"exclusive bounds", MessageFilter{After: at(10), Before: at(40), Limit: 10}, []string{"a3", "a2"}},
		{"sender and query", MessageFilter{SenderIDs: []string{"alice"}, Query: "hello", Limit: 10}, []string{"a1"}},
		{"page", MessageFilter{Limit: 2, Offset: 2}, []string{"a2", "a1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Messages(ctx, tt.f)
			if err != nil {
				t.Fatal(err)
			}
			equalIDs(t, got, tt.want...)
		})
	}

	got, err := r.Messages(ctx, MessageFilter{ChatJID: "team@g.us", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].ChatName != "Team" || got[0].MediaType != "image" || !got[0].Timestamp.Equal(at(40)) {
		t.Errorf("message = %+v", got[0])
	}
}

// Bounds compare instants, not strings: 13:30+02:00 is earlier than 12:00Z.
func TestMessagesBoundsAcrossOffsets(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	plus2 := time.FixedZone("", 2*3600)
	seedChat(t, db, "c", "C", time.Time{})
	seedMsg(t, db, Message{ID: "early", ChatJID: "c", Timestamp: time.Date(2026, 2, 20, 13, 30, 0, 0, plus2)})
	seedMsg(t, db, Message{ID: "late", ChatJID: "c", Timestamp: time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)})

	got, err := reader(t, db).Messages(ctx, MessageFilter{After: time.Date(2026, 2, 20, 11, 45, 0, 0, time.UTC), Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	equalIDs(t, got, "late")
}

// julianday keeps milliseconds; sub-millisecond bounds must not exclude a
// message at the same whole second.
func TestMessagesBoundsSubMillisecond(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedChat(t, db, "c", "C", time.Time{})
	seedMsg(t, db, Message{ID: "m", ChatJID: "c", Timestamp: base})
	r := reader(t, db)

	got, err := r.Messages(ctx, MessageFilter{Before: base.Add(400 * time.Microsecond), Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	equalIDs(t, got, "m")

	got, err = r.Messages(ctx, MessageFilter{After: base.Add(-400 * time.Microsecond), Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	equalIDs(t, got, "m")

	got, err = r.Messages(ctx, MessageFilter{Before: base, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	equalIDs(t, got)
}

func TestMessageByID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedChat(t, db, "a", "A", time.Time{})
	seedChat(t, db, "b", "B", time.Time{})
	seedMsg(t, db, Message{ID: "dup", ChatJID: "a", Content: "old", Timestamp: at(1)})
	seedMsg(t, db, Message{ID: "dup", ChatJID: "b", Content: "new", Timestamp: at(2)})
	r := reader(t, db)

	m, err := r.Message(ctx, "dup", "")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.ChatJID != "b" {
		t.Errorf("bare id resolved to %+v, want latest (chat b)", m)
	}

	m, err = r.Message(ctx, "dup", "a")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Content != "old" {
		t.Errorf("scoped id resolved to %+v, want chat a", m)
	}

	m, err = r.Message(ctx, "missing", "")
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Errorf("expected nil for missing message")
	}
}

func TestNeighbours(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedChat(t, db, "c", "C", time.Time{})
	seedChat(t, db, "other", "O", time.Time{})
	for i, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		seedMsg(t, db, Message{ID: id, ChatJID: "c", Timestamp: at(i)})
	}
	seedMsg(t, db, Message{ID: "x", ChatJID: "other", Timestamp: at(1)})
	r := reader(t, db)

	target, err := r.Message(ctx, "t3", "c")
	if err != nil || target == nil {
		t.Fatalf("target: %v %v", target, err)
	}
	before, err := r.MessagesBefore(ctx, *target, 2)
	if err != nil {
		t.Fatal(err)
	}
	equalIDs(t, before, "t2", "t1")

	after, err := r.MessagesAfter(ctx, *target, 5)
	if err != nil {
		t.Fatal(err)
	}
	equalIDs(t, after, "t4", "t5")

	none, err := r.MessagesBefore(ctx, *target, 0)
	if err != nil {
		t.Fatal(err)
	}
	equalIDs(t, none)
}

func TestChats(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedChat(t, db, "alice@s.whatsapp.net", "alice", at(10))
	seedChat(t, db, "bob@s.whatsapp.net", "Bob", at(30))
	seedChat(t, db, "team@g.us", "Team", at(20))
	seedChat(t, db, "noname@s.whatsapp.net", "", time.Time{})
	seedMsg(t, db, Message{ID: "b1", ChatJID: "bob@s.whatsapp.net", SenderID: "bob", Content: "first", Timestamp: at(30)})
	seedMsg(t, db, Message{ID: "b2", ChatJID: "bob@s.whatsapp.net", SenderID: "bob", Content: "second", Timestamp: at(30)})
	r := reader(t, db)

	byRecency, err := r.Chats(ctx, ChatFilter{Sort: SortLastActive, IncludeLast: true, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"bob@s.whatsapp.net", "team@g.us", "alice@s.whatsapp.net", "noname@s.whatsapp.net"}
	for i, c := range byRecency {
		if c.JID != want[i] {
			t.Fatalf("recency order[%d] = %q, want %q", i, c.JID, want[i])
		}
	}
	// Two messages share bob's last instant; the highest id wins.
	if byRecency[0].LastMessage != "second" || byRecency[0].LastSenderID != "bob" {
		t.Errorf("last message = %q from %q, want second from bob", byRecency[0].LastMessage, byRecency[0].LastSenderID)
	}

	byName, err := r.Chats(ctx, ChatFilter{Sort: SortName, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	// Case-insensitive: "alice" before "Bob"; unnamed last.
	wantName := []string{"alice@s.whatsapp.net", "bob@s.whatsapp.net", "team@g.us", "noname@s.whatsapp.net"}
	for i, c := range byName {
		if c.JID != wantName[i] {
			t.Fatalf("name order[%d] = %q, want %q", i, c.JID, wantName[i])
		}
	}
	if byName[0].LastMessage != "" {
		t.Errorf("last message included without IncludeLast")
	}

	matched, err := r.Chats(ctx, ChatFilter{Query: "G.US", Sort: SortLastActive, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 || !matched[0].IsGroup() {
		t.Errorf("query by jid = %v, want the group", matched)
	}
}

func TestChatLookup(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedChat(t, db, "alice@s.whatsapp.net", "Alice", at(5))
	r := reader(t, db)

	c, err := r.Chat(ctx, "alice@s.whatsapp.net", true)
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Name != "Alice" || c.IsGroup() || !c.LastMessageTime.Equal(at(5)) {
		t.Errorf("got %+v", c)
	}

	c, err = r.Chat(ctx, "missing@s.whatsapp.net", true)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing chat")
	}
}

func TestChatsInvolvingAndDirectChat(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedChat(t, db, "bob", "Bob (bare)", at(1))
	seedChat(t, db, "bob@s.whatsapp.net", "Bob", at(5))
	seedChat(t, db, "team@g.us", "Team", at(9))
	seedChat(t, db, "carol@s.whatsapp.net", "Carol", at(3))
	seedMsg(t, db, Message{ID: "g1", ChatJID: "team@g.us", SenderID: "bob-lid", Timestamp: at(9)})
	seedMsg(t, db, Message{ID: "c1", ChatJID: "carol@s.whatsapp.net", SenderID: "carol", Timestamp: at(3)})
	r := reader(t, db)

	senders := []string{"bob", "bob-lid"}
	jids := identity.DirectChatJIDs(senders)

	chats, err := r.ChatsInvolving(ctx, senders, jids, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, c := range chats {
		got = append(got, c.JID)
	}
	want := []string{"team@g.us", "bob@s.whatsapp.net", "bob"}
	if len(got) != len(want) {
		t.Fatalf("chats = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chats = %v, want %v", got, want)
		}
	}

	direct, err := r.DirectChat(ctx, jids)
	if err != nil {
		t.Fatal(err)
	}
	if direct == nil || direct.JID != "bob@s.whatsapp.net" {
		t.Errorf("direct chat = %+v, want bob@s.whatsapp.net", direct)
	}

	latest, err := r.LatestInvolving(ctx, senders, jids)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != "g1" {
		t.Errorf("latest = %+v, want g1", latest)
	}

	name, err := r.ChatName(ctx, "carol@s.whatsapp.net")
	if err != nil || name != "Carol" {
		t.Errorf("ChatName = %q, %v", name, err)
	}
}

func TestAliases(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, a := range []string{"bob2", "bob-lid"} {
		if err := db.UpsertSenderAlias(ctx, a, "bob"); err != nil {
			t.Fatal(err)
		}
	}
	r := reader(t, db)

	exp, err := r.Expand(ctx, "bob2")
	if err != nil {
		t.Fatal(err)
	}
	if exp.Canonical != "bob" || len(exp.Candidates) != 3 || exp.Degraded {
		t.Errorf("expand = %+v", exp)
	}
}

func TestAliasTableMissingDegrades(t *testing.T) {
	db := testDBAt(t, 1)
	ctx := context.Background()
	r := reader(t, db)

	_, err := r.CanonicalOf(ctx, "bob")
	if !errors.Is(err, identity.ErrAliasTableMissing) {
		t.Fatalf("CanonicalOf() error = %v, want ErrAliasTableMissing", err)
	}

	exp, err := r.Expand(ctx, "bob2")
	if err != nil {
		t.Fatal(err)
	}
	if exp.Canonical != "bob2" || !exp.Degraded {
		t.Errorf("expand = %+v, want degraded identity", exp)
	}
}

func TestSearchContacts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedChat(t, db, "bob-lid", "", at(1))
	seedChat(t, db, "bob@s.whatsapp.net", "", at(2))
	seedChat(t, db, "bob", "Bobby", at(3))
	seedChat(t, db, "anna@s.whatsapp.net", "anna", at(4))
	seedChat(t, db, "bobs-group@g.us", "Bob's group", at(5))
	seedChat(t, db, "zed@s.whatsapp.net", "", at(6))
	if err := db.UpsertSenderAlias(ctx, "bob-lid", "bob"); err != nil {
		t.Fatal(err)
	}
	r := reader(t, db)

	contacts, err := r.SearchContacts(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 1 {
		t.Fatalf("contacts = %+v, want one collapsed bob", contacts)
	}
	bob := contacts[0]
	if bob.SenderID != "bob" || bob.Name != "Bobby" || bob.ChatJID != "bob@s.whatsapp.net" {
		t.Errorf("bob = %+v", bob)
	}

	all, err := r.SearchContacts(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, c := range all {
		if identity.IsGroupJID(c.ChatJID) {
			t.Errorf("group leaked into contacts: %+v", c)
		}
		order = append(order, c.SenderID)
	}
	// Unnamed sorts first (empty name), then by name.
	want := []string{"zed", "anna", "bob"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

// More raw rows than the scan reads: the kept window must be the head of the
// final (lower(name), id) order, which puts unnamed and lowercase names
// ahead of "Person NNN".
func TestSearchContactsCapKeepsSortHead(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for i := 0; i < contactScanLimit+10; i++ {
		seedChat(t, db, fmt.Sprintf("%d@s.whatsapp.net", 1000+i), fmt.Sprintf("Person %03d", i), at(i))
	}
	seedChat(t, db, "aaa@s.whatsapp.net", "", at(1))
	seedChat(t, db, "adam@s.whatsapp.net", "adam", at(2))

	contacts, err := reader(t, db).SearchContacts(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != MaxContacts {
		t.Fatalf("len = %d, want %d", len(contacts), MaxContacts)
	}
	want := []string{"aaa", "adam", "1000", "1001"}
	for i, id := range want {
		if contacts[i].SenderID != id {
			t.Fatalf("contacts[%d] = %+v, want %s", i, contacts[i], id)
		}
	}
	if last := contacts[MaxContacts-1]; last.Name != "Person 047" {
		t.Errorf("last = %+v, want Person 047", last)
	}
}

func TestNullTimeScan(t *testing.T) {
	tests := []struct {
		in   any
		want time.Time
	}{
		{"2026-02-20 12:00:00+00:00", base},
		{"2026-02-20T04:00:00-08:00", base},
		{[]byte("2026-02-20 12:00:00Z"), base},
		{base, base},
	}
	for _, tt := range tests {
		var n nullTime
		if err := n.Scan(tt.in); err != nil {
			t.Fatalf("Scan(%v): %v", tt.in, err)
		}
		if !n.Valid || !n.Time.Equal(tt.want) {
			t.Errorf("Scan(%v) = %v, want %v", tt.in, n.Time, tt.want)
		}
	}

	var n nullTime
	if err := n.Scan(nil); err != nil || n.Valid {
		t.Errorf("Scan(nil) = %+v, %v", n, err)
	}
	if err := n.Scan("not a time"); err == nil {
		t.Error("expected error for garbage timestamp")
	}
}
