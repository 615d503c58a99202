// Package msgcontext assembles the messages surrounding a target message.
package msgcontext

import (
	"context"

	"github.com/krishhrana/whatsapp-mcp/internal/apperr"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
)

// Source reads a message and its chat neighbours. *store.Reader satisfies it.
type Source interface {
	Message(ctx context.Context, id, chatJID string) (*store.Message, error)
	MessagesBefore(ctx context.Context, target store.Message, n int) ([]store.Message, error)
	MessagesAfter(ctx context.Context, target store.Message, n int) ([]store.Message, error)
}

// Context is a target message with its neighbours, both nearest first.
type Context struct {
	Message store.Message
	Before  []store.Message
	After   []store.Message
}

// Assemble loads message id and up to before/after neighbours from the same
// chat. chatJID disambiguates ids reused across chats; empty picks the most
// recent match.
func Assemble(ctx context.Context, src Source, id, chatJID string, before, after int) (*Context, error) {
	if before < 0 {
		return nil, apperr.Invalid("before", "must be greater than or equal to 0")
	}
	if after < 0 {
		return nil, apperr.Invalid("after", "must be greater than or equal to 0")
	}
	if id == "" {
		return nil, apperr.Invalid("message_id", "must be a non-empty string")
	}

	target, err := src.Message(ctx, id, chatJID)
	if err != nil {
		return nil, apperr.Unavailable("get message context", err)
	}
	if target == nil {
		return nil, apperr.NotFound("message %q", id)
	}
	return Expand(ctx, src, *target, before, after)
}

// Expand attaches neighbours to a message already loaded.
func Expand(ctx context.Context, src Source, target store.Message, before, after int) (*Context, error) {
	prev, err := src.MessagesBefore(ctx, target, before)
	if err != nil {
		return nil, apperr.Unavailable("get message context", err)
	}
	next, err := src.MessagesAfter(ctx, target, after)
	if err != nil {
		return nil, apperr.Unavailable("get message context", err)
	}
	return &Context{Message: target, Before: prev, After: next}, nil
}
