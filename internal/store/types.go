package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/krishhrana/whatsapp-mcp/internal/identity"
)

// Message is one archived chat event.
type Message struct {
	ID        string
	ChatJID   string
	ChatName  string
	SenderID  string
	Content   string
	Timestamp time.Time
	IsFromMe  bool
	MediaType string
}

// Chat is a conversation with its denormalized last message.
type Chat struct {
	JID             string
	Name            string
	LastMessageTime time.Time
	LastMessage     string
	LastSenderID    string
	LastIsFromMe    bool
}

// IsGroup reports whether the chat is a group conversation.
func (c Chat) IsGroup() bool { return identity.IsGroupJID(c.JID) }

// Contact is a person derived from direct-chat rows.
type Contact struct {
	SenderID string
	Name     string
	ChatJID  string
}

// timestampLayouts are the textual forms the bridge and SQLite produce.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// nullTime scans TIMESTAMP columns. The driver hands back time.Time for
// declared columns and strings for computed ones.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(v any) error {
	n.Time, n.Valid = time.Time{}, false
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		n.Time, n.Valid = x, !x.IsZero()
		return nil
	case int64:
		n.Time, n.Valid = time.Unix(x, 0).UTC(), true
		return nil
	case []byte:
		return n.parse(string(x))
	case string:
		return n.parse(x)
	}
	return fmt.Errorf("unsupported timestamp type %T", v)
}

func (n *nullTime) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", s)
}

// messageColumns must match scanMessage.
const messageColumns = `m.timestamp, m.sender, c.name, m.content, m.is_from_me, c.jid, m.id, m.media_type`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (Message, error) {
	var m Message
	var ts nullTime
	var sender, chatName, content, media sql.NullString
	var fromMe sql.NullBool
	if err := s.Scan(&ts, &sender, &chatName, &content, &fromMe, &m.ChatJID, &m.ID, &media); err != nil {
		return Message{}, err
	}
	m.Timestamp = ts.Time
	m.SenderID = sender.String
	m.ChatName = chatName.String
	m.Content = content.String
	m.IsFromMe = fromMe.Bool
	m.MediaType = media.String
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
