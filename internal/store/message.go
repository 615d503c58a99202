package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// storedLayout is how the bridge driver renders time.Time values.
const storedLayout = "2006-01-02 15:04:05.999999999-07:00"

// Newest first. Ties on the instant break on chat then id so pages are stable.
const orderNewest = `ORDER BY julianday(m.timestamp) DESC, m.chat_jid ASC, m.id DESC`

// MessageFilter selects messages. Zero fields do not filter.
type MessageFilter struct {
	SenderIDs []string // any of
	ChatJID   string
	Query     string // case-insensitive substring of content
	After     time.Time
	Before    time.Time
	Limit     int
	Offset    int
}

// Messages returns the messages matching f, newest first. Time bounds are
// exclusive and compared on the parsed instant.
func (r *Reader) Messages(ctx context.Context, f MessageFilter) ([]Message, error) {
	var (
		where []string
		args  []any
	)
	if len(f.SenderIDs) > 0 {
		where = append(where, "m.sender IN ("+placeholders(len(f.SenderIDs))+")")
		for _, id := range f.SenderIDs {
			args = append(args, id)
		}
	}
	if f.ChatJID != "" {
		where = append(where, "m.chat_jid = ?")
		args = append(args, f.ChatJID)
	}
	if f.Query != "" {
		where = append(where, `LOWER(m.content) LIKE LOWER(?) ESCAPE '\'`)
		args = append(args, likePattern(f.Query))
	}
	if !f.After.IsZero() {
		where = append(where, "julianday(m.timestamp) > julianday(?)")
		args = append(args, f.After.Truncate(time.Millisecond).Format(storedLayout))
	}
	if !f.Before.IsZero() {
		where = append(where, "julianday(m.timestamp) < julianday(?)")
		args = append(args, ceilMilli(f.Before).Format(storedLayout))
	}

	var b strings.Builder
	b.WriteString("SELECT " + messageColumns + " FROM messages m JOIN chats c ON m.chat_jid = c.jid")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" " + orderNewest + " LIMIT ? OFFSET ?")
	args = append(args, f.Limit, f.Offset)

	rows, err := r.conn.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return scanMessages(rows)
}

// Message returns a message by id, or nil when absent. Ids are only unique per
// chat: with an empty chatJID the most recent match wins.
func (r *Reader) Message(ctx context.Context, id, chatJID string) (*Message, error) {
	q := "SELECT " + messageColumns + " FROM messages m JOIN chats c ON m.chat_jid = c.jid WHERE m.id = ?"
	args := []any{id}
	if chatJID != "" {
		q += " AND m.chat_jid = ?"
		args = append(args, chatJID)
	}
	q += " " + orderNewest + " LIMIT 1"

	m, err := scanMessage(r.conn.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %q: %w", id, err)
	}
	return &m, nil
}

// MessagesBefore returns up to n messages of target's chat with a strictly
// earlier timestamp, nearest first.
func (r *Reader) MessagesBefore(ctx context.Context, target Message, n int) ([]Message, error) {
	return r.neighbours(ctx, target, n, "<", `ORDER BY julianday(m.timestamp) DESC, m.id DESC`)
}

// MessagesAfter returns up to n messages of target's chat with a strictly
// later timestamp, nearest first.
func (r *Reader) MessagesAfter(ctx context.Context, target Message, n int) ([]Message, error) {
	return r.neighbours(ctx, target, n, ">", `ORDER BY julianday(m.timestamp) ASC, m.id ASC`)
}

func (r *Reader) neighbours(ctx context.Context, target Message, n int, cmp, order string) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	// Compare against the stored value so the pivot never round-trips.
	q := "SELECT " + messageColumns + ` FROM messages m JOIN chats c ON m.chat_jid = c.jid
		WHERE m.chat_jid = ?
		  AND julianday(m.timestamp) ` + cmp + ` (SELECT julianday(timestamp) FROM messages WHERE id = ? AND chat_jid = ?)
		` + order + ` LIMIT ?`
	rows, err := r.conn.QueryContext(ctx, q, target.ChatJID, target.ID, target.ChatJID, n)
	if err != nil {
		return nil, fmt.Errorf("query context of %q: %w", target.ID, err)
	}
	return scanMessages(rows)
}

// LatestInvolving returns the newest message sent by any of senderIDs or
// posted in any of chatJIDs, or nil.
func (r *Reader) LatestInvolving(ctx context.Context, senderIDs, chatJIDs []string) (*Message, error) {
	var (
		or   []string
		args []any
	)
	if len(senderIDs) > 0 {
		or = append(or, "m.sender IN ("+placeholders(len(senderIDs))+")")
		for _, id := range senderIDs {
			args = append(args, id)
		}
	}
	if len(chatJIDs) > 0 {
		or = append(or, "c.jid IN ("+placeholders(len(chatJIDs))+")")
		for _, jid := range chatJIDs {
			args = append(args, jid)
		}
	}
	if len(or) == 0 {
		return nil, nil
	}

	q := "SELECT " + messageColumns + " FROM messages m JOIN chats c ON m.chat_jid = c.jid WHERE " +
		strings.Join(or, " OR ") + " " + orderNewest + " LIMIT 1"
	m, err := scanMessage(r.conn.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}
	return &m, nil
}

// InsertMessage writes a message row. The bridge owns ingestion; this is for
// fixtures and local imports.
func (db *DB) InsertMessage(ctx context.Context, m Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_jid, sender, content, timestamp, is_from_me, media_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, chat_jid) DO UPDATE SET
			sender = excluded.sender,
			content = excluded.content,
			timestamp = excluded.timestamp,
			is_from_me = excluded.is_from_me,
			media_type = excluded.media_type`,
		m.ID, m.ChatJID, m.SenderID, m.Content, m.Timestamp.Format(storedLayout), m.IsFromMe, nullString(m.MediaType))
	if err != nil {
		return fmt.Errorf("insert message %q: %w", m.ID, err)
	}
	return nil
}

// ceilMilli rounds t up to the millisecond. julianday keeps no finer
// precision, so an exclusive upper bound must not be truncated below a
// stored instant.
func ceilMilli(t time.Time) time.Time {
	if d := t.Truncate(time.Millisecond); !d.Equal(t) {
		return d.Add(time.Millisecond)
	}
	return t
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches s anywhere, with LIKE wildcards in s taken literally.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
