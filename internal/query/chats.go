package query

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/krishhrana/whatsapp-mcp/internal/apperr"
	"github.com/krishhrana/whatsapp-mcp/internal/identity"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
)

// ChatsRequest filters a chat listing. Sort is "last_active" (default) or
// "name".
type ChatsRequest struct {
	Query       string
	Sort        string
	IncludeLast bool
	Page        Page
}

// ListChats lists chats whose name or jid contains Query.
func (s *Service) ListChats(ctx context.Context, req ChatsRequest) ([]store.Chat, error) {
	if err := req.Page.validate(); err != nil {
		return nil, err
	}
	f := store.ChatFilter{
		Query:       strings.TrimSpace(req.Query),
		Sort:        store.ParseChatSort(req.Sort),
		IncludeLast: req.IncludeLast,
		Limit:       req.Page.Limit,
		Offset:      req.Page.offset(),
	}
	var chats []store.Chat
	err := s.withReader(ctx, func(r *store.Reader) error {
		var err error
		chats, err = r.Chats(ctx, f)
		return err
	})
	if err != nil {
		return nil, s.degrade("list_chats", err)
	}
	return chats, nil
}

// GetChat returns one chat by jid.
func (s *Service) GetChat(ctx context.Context, chatJID string, includeLast bool) (*store.Chat, error) {
	jid, err := requireChatJID(chatJID)
	if err != nil {
		return nil, err
	}
	var chat *store.Chat
	err = s.withReader(ctx, func(r *store.Reader) error {
		var err error
		chat, err = r.Chat(ctx, jid, includeLast)
		return err
	})
	if err != nil {
		return nil, lookupErr("get chat", err)
	}
	if chat == nil {
		return nil, apperr.NotFound("chat %q", jid)
	}
	return chat, nil
}

// GetDirectChatByContact returns the direct chat with senderID, preferring the
// canonical jid form when several are stored.
func (s *Service) GetDirectChatByContact(ctx context.Context, senderID string) (*store.Chat, error) {
	id, err := requireSender(senderID)
	if err != nil {
		return nil, err
	}
	var chat *store.Chat
	err = s.withReader(ctx, func(r *store.Reader) error {
		exp, err := r.Expand(ctx, id)
		if err != nil {
			return err
		}
		chat, err = r.DirectChat(ctx, identity.DirectChatJIDs(exp.Ordered()))
		return err
	})
	if err != nil {
		return nil, lookupErr("get direct chat", err)
	}
	if chat == nil {
		return nil, apperr.NotFound("direct chat with %q", id)
	}
	return chat, nil
}

// GetContactChats lists every chat senderID took part in, direct or group.
func (s *Service) GetContactChats(ctx context.Context, senderID string, page Page) ([]store.Chat, error) {
	id, err := requireSender(senderID)
	if err != nil {
		return nil, err
	}
	if err := page.validate(); err != nil {
		return nil, err
	}
	var chats []store.Chat
	err = s.withReader(ctx, func(r *store.Reader) error {
		exp, err := r.Expand(ctx, id)
		if err != nil {
			return err
		}
		chats, err = r.ChatsInvolving(ctx, exp.Candidates, identity.DirectChatJIDs(exp.Candidates), page.Limit, page.offset())
		return err
	})
	if err != nil {
		return nil, s.degrade("get_contact_chats", err)
	}
	return chats, nil
}

// GetLastInteraction returns the newest message sent by senderID or posted in
// a direct chat with them.
func (s *Service) GetLastInteraction(ctx context.Context, senderID string) (*store.Message, error) {
	id, err := requireSender(senderID)
	if err != nil {
		return nil, err
	}
	var msg *store.Message
	err = s.withReader(ctx, func(r *store.Reader) error {
		exp, err := r.Expand(ctx, id)
		if err != nil {
			return err
		}
		msg, err = r.LatestInvolving(ctx, exp.Candidates, identity.DirectChatJIDs(exp.Candidates))
		return err
	})
	if err != nil {
		return nil, lookupErr("get last interaction", err)
	}
	if msg == nil {
		return nil, apperr.NotFound("interaction with %q", id)
	}
	return msg, nil
}

// SearchContacts finds people by name or id. Empty text matches everyone up
// to store.MaxContacts.
func (s *Service) SearchContacts(ctx context.Context, text string) ([]store.Contact, error) {
	var contacts []store.Contact
	err := s.withReader(ctx, func(r *store.Reader) error {
		var err error
		contacts, err = r.SearchContacts(ctx, strings.TrimSpace(text))
		return err
	})
	if err != nil {
		return nil, s.degrade("search_contacts", err)
	}
	return contacts, nil
}

// SenderName returns the best display name for a sender: the name of a direct
// chat with any of their aliases, else the canonical id. Lookup failures fall
// back to the id.
func (s *Service) SenderName(ctx context.Context, senderID string) string {
	id, err := identity.Canonicalize(senderID)
	if err != nil || id == "" {
		return strings.TrimSpace(senderID)
	}
	name := id
	err = s.withReader(ctx, func(r *store.Reader) error {
		exp, err := r.Expand(ctx, id)
		if err != nil {
			return err
		}
		name = exp.Canonical
		for _, candidate := range exp.Ordered() {
			for _, jid := range identity.DirectChatJIDs([]string{candidate}) {
				n, err := r.ChatName(ctx, jid)
				if err != nil {
					return err
				}
				if n != "" {
					name = n
					return nil
				}
			}
		}
		return nil
	})
	if err != nil {
		s.log.Debug("sender name lookup failed", zap.String("sender_id", id), zap.Error(err))
		return id
	}
	return name
}
