package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ChatSort orders chat listings.
type ChatSort string

const (
	SortLastActive ChatSort = "last_active"
	SortName       ChatSort = "name"
)

// ParseChatSort maps a caller value to a ChatSort. Anything other than
// "last_active" sorts by name.
func ParseChatSort(s string) ChatSort {
	if strings.TrimSpace(s) == "" || s == string(SortLastActive) {
		return SortLastActive
	}
	return SortName
}

func (s ChatSort) orderBy() string {
	if s == SortName {
		return `ORDER BY c.name IS NULL OR c.name = '', LOWER(c.name) ASC, c.jid ASC`
	}
	return `ORDER BY julianday(c.last_message_time) DESC, c.jid ASC`
}

// The last message is the one whose instant equals the chat's
// last_message_time. Several can share it; the highest id wins.
const (
	chatWithLast = `SELECT c.jid, c.name, c.last_message_time, lm.content, lm.sender, lm.is_from_me
		FROM chats c
		LEFT JOIN messages lm ON lm.rowid = (
			SELECT m2.rowid FROM messages m2
			WHERE m2.chat_jid = c.jid
			  AND julianday(m2.timestamp) = julianday(c.last_message_time)
			ORDER BY m2.id DESC
			LIMIT 1
		)`
	chatOnly = `SELECT c.jid, c.name, c.last_message_time, NULL, NULL, NULL FROM chats c`
)

func chatSelect(includeLast bool) string {
	if includeLast {
		return chatWithLast
	}
	return chatOnly
}

func scanChat(s scanner) (Chat, error) {
	var c Chat
	var name, last, lastSender sql.NullString
	var lastTime nullTime
	var lastFromMe sql.NullBool
	if err := s.Scan(&c.JID, &name, &lastTime, &last, &lastSender, &lastFromMe); err != nil {
		return Chat{}, err
	}
	c.Name = name.String
	c.LastMessageTime = lastTime.Time
	c.LastMessage = last.String
	c.LastSenderID = lastSender.String
	c.LastIsFromMe = lastFromMe.Bool
	return c, nil
}

func scanChats(rows *sql.Rows) ([]Chat, error) {
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// ChatFilter selects chats for a listing.
type ChatFilter struct {
	Query       string // case-insensitive substring of name or jid
	Sort        ChatSort
	IncludeLast bool
	Limit       int
	Offset      int
}

// Chats lists chats matching f.
func (r *Reader) Chats(ctx context.Context, f ChatFilter) ([]Chat, error) {
	q := chatSelect(f.IncludeLast)
	var args []any
	if f.Query != "" {
		q += ` WHERE (LOWER(c.name) LIKE LOWER(?) ESCAPE '\' OR LOWER(c.jid) LIKE LOWER(?) ESCAPE '\')`
		p := likePattern(f.Query)
		args = append(args, p, p)
	}
	q += " " + f.Sort.orderBy() + " LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := r.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return scanChats(rows)
}

// Chat returns a chat by jid, or nil when absent.
func (r *Reader) Chat(ctx context.Context, jid string, includeLast bool) (*Chat, error) {
	c, err := scanChat(r.conn.QueryRowContext(ctx, chatSelect(includeLast)+" WHERE c.jid = ?", jid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %q: %w", jid, err)
	}
	return &c, nil
}

// ChatsInvolving lists chats that are one of chatJIDs or that contain a
// message from any of senderIDs, most recently active first.
func (r *Reader) ChatsInvolving(ctx context.Context, senderIDs, chatJIDs []string, limit, offset int) ([]Chat, error) {
	var (
		or   []string
		args []any
	)
	if len(chatJIDs) > 0 {
		or = append(or, "c.jid IN ("+placeholders(len(chatJIDs))+")")
		for _, jid := range chatJIDs {
			args = append(args, jid)
		}
	}
	if len(senderIDs) > 0 {
		or = append(or, "EXISTS (SELECT 1 FROM messages m WHERE m.chat_jid = c.jid AND m.sender IN ("+placeholders(len(senderIDs))+"))")
		for _, id := range senderIDs {
			args = append(args, id)
		}
	}
	if len(or) == 0 {
		return nil, nil
	}

	q := chatWithLast + " WHERE " + strings.Join(or, " OR ") + " " + SortLastActive.orderBy() + " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	rows, err := r.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list contact chats: %w", err)
	}
	return scanChats(rows)
}

// DirectChat returns the most recently active non-group chat among jids, or nil.
func (r *Reader) DirectChat(ctx context.Context, jids []string) (*Chat, error) {
	if len(jids) == 0 {
		return nil, nil
	}
	args := make([]any, len(jids))
	for i, jid := range jids {
		args[i] = jid
	}
	q := chatWithLast + " WHERE c.jid IN (" + placeholders(len(jids)) + `) AND c.jid NOT LIKE '%@g.us' ` +
		SortLastActive.orderBy() + " LIMIT 1"

	c, err := scanChat(r.conn.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get direct chat: %w", err)
	}
	return &c, nil
}

// ChatName returns the stored name of jid, or "" when unnamed or absent.
func (r *Reader) ChatName(ctx context.Context, jid string) (string, error) {
	var name sql.NullString
	err := r.conn.QueryRowContext(ctx, `SELECT name FROM chats WHERE jid = ? LIMIT 1`, jid).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("chat name %q: %w", jid, err)
	}
	return name.String, nil
}

// UpsertChat inserts or updates a chat record. A zero LastMessageTime is stored
// as NULL.
func (db *DB) UpsertChat(ctx context.Context, c Chat) error {
	var last any
	if !c.LastMessageTime.IsZero() {
		last = c.LastMessageTime.Format(storedLayout)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO chats (jid, name, last_message_time)
		VALUES (?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = COALESCE(excluded.name, chats.name),
			last_message_time = excluded.last_message_time`,
		c.JID, nullString(c.Name), last)
	if err != nil {
		return fmt.Errorf("upsert chat %q: %w", c.JID, err)
	}
	return nil
}
