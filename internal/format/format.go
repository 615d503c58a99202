// Package format renders archive entities as human-readable text.
package format

import (
	"context"
	"fmt"
	"strings"

	"github.com/krishhrana/whatsapp-mcp/internal/msgcontext"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

// Namer resolves a sender id to a display name. *query.Service satisfies it.
type Namer interface {
	SenderName(ctx context.Context, senderID string) string
}

// Formatter renders messages with resolved sender names.
type Formatter struct {
	names Namer
}

// New returns a Formatter. A nil Namer prints raw sender ids.
func New(names Namer) *Formatter {
	return &Formatter{names: names}
}

func (f *Formatter) sender(ctx context.Context, m store.Message) string {
	if m.IsFromMe {
		return "Me"
	}
	if f.names == nil {
		return m.SenderID
	}
	return f.names.SenderName(ctx, m.SenderID)
}

// Message renders one line:
//
//	[2026-02-20 12:00:00] Chat: Team From: Alice: [image - Message ID: x - Chat JID: y] caption
func (f *Formatter) Message(ctx context.Context, m store.Message, showChat bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", m.Timestamp.Format(timeLayout))
	if showChat && m.ChatName != "" {
		fmt.Fprintf(&b, "Chat: %s ", m.ChatName)
	}
	fmt.Fprintf(&b, "From: %s: ", f.sender(ctx, m))
	if m.MediaType != "" {
		fmt.Fprintf(&b, "[%s - Message ID: %s - Chat JID: %s] ", m.MediaType, m.ID, m.ChatJID)
	}
	b.WriteString(m.Content)
	b.WriteByte('\n')
	return b.String()
}

// Messages renders a list, one message per line.
func (f *Formatter) Messages(ctx context.Context, msgs []store.Message, showChat bool) string {
	if len(msgs) == 0 {
		return "No messages to display."
	}
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(f.Message(ctx, m, showChat))
	}
	return b.String()
}

// Context renders a message with its surroundings in chronological order.
// The target line is marked with ">".
func (f *Formatter) Context(ctx context.Context, c msgcontext.Context) string {
	var b strings.Builder
	for i := len(c.Before) - 1; i >= 0; i-- {
		b.WriteString("  " + f.Message(ctx, c.Before[i], false))
	}
	b.WriteString("> " + f.Message(ctx, c.Message, true))
	for _, m := range c.After {
		b.WriteString("  " + f.Message(ctx, m, false))
	}
	return b.String()
}

// Chat renders a chat summary line.
func Chat(c store.Chat) string {
	var b strings.Builder
	name := c.Name
	if name == "" {
		name = c.JID
	}
	kind := "direct"
	if c.IsGroup() {
		kind = "group"
	}
	fmt.Fprintf(&b, "%s (%s, %s)", name, c.JID, kind)
	if !c.LastMessageTime.IsZero() {
		fmt.Fprintf(&b, " last active %s", c.LastMessageTime.Format(timeLayout))
	}
	if c.LastMessage != "" {
		who := c.LastSenderID
		if c.LastIsFromMe {
			who = "Me"
		}
		fmt.Fprintf(&b, ": %s: %s", who, c.LastMessage)
	}
	return b.String()
}

// Contact renders a contact line.
func Contact(c store.Contact) string {
	if c.Name == "" {
		return fmt.Sprintf("%s (%s)", c.SenderID, c.ChatJID)
	}
	return fmt.Sprintf("%s: %s (%s)", c.Name, c.SenderID, c.ChatJID)
}
