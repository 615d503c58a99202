package query

import (
	"context"
	"strings"

	"github.com/krishhrana/whatsapp-mcp/internal/apperr"
	"github.com/krishhrana/whatsapp-mcp/internal/identity"
	"github.com/krishhrana/whatsapp-mcp/internal/msgcontext"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
	"github.com/krishhrana/whatsapp-mcp/internal/timewindow"
)

// MessagePage is a listing result. Contexts is set instead of Messages when
// context expansion was requested.
type MessagePage struct {
	Messages []store.Message
	Contexts []msgcontext.Context
}

// Len returns the number of hits.
func (p MessagePage) Len() int {
	if p.Contexts != nil {
		return len(p.Contexts)
	}
	return len(p.Messages)
}

// ListRequest filters a message listing. Content search is not part of a
// listing; see Search.
type ListRequest struct {
	SenderID string
	ChatJID  string
	Window   timewindow.Params
	Page     Page
	Context  ContextOptions
}

// SearchRequest filters a content search.
type SearchRequest struct {
	Query    string
	SenderID string
	ChatJID  string
	Window   timewindow.Params
	Page     Page
}

type messageQuery struct {
	filter  store.MessageFilter
	sender  string
	context ContextOptions
}

// ListMessages lists messages by optional sender, chat and window.
func (s *Service) ListMessages(ctx context.Context, req ListRequest) (MessagePage, error) {
	q, err := s.prepare(req.SenderID, strings.TrimSpace(req.ChatJID), "", req.Window, req.Page)
	if err != nil {
		return MessagePage{}, err
	}
	if err := req.Context.validate(); err != nil {
		return MessagePage{}, err
	}
	q.context = req.Context
	return s.run(ctx, "list_messages", q)
}

// ListMessagesForSender lists messages from every alias of senderID.
func (s *Service) ListMessagesForSender(ctx context.Context, senderID string, window timewindow.Params, page Page, opts ContextOptions) (MessagePage, error) {
	id, err := requireSender(senderID)
	if err != nil {
		return MessagePage{}, err
	}
	return s.ListMessages(ctx, ListRequest{SenderID: id, Window: window, Page: page, Context: opts})
}

// ListMessagesForChat lists messages of one chat.
func (s *Service) ListMessagesForChat(ctx context.Context, chatJID string, window timewindow.Params, page Page, opts ContextOptions) (MessagePage, error) {
	jid, err := requireChatJID(chatJID)
	if err != nil {
		return MessagePage{}, err
	}
	return s.ListMessages(ctx, ListRequest{ChatJID: jid, Window: window, Page: page, Context: opts})
}

// SearchMessages matches content case-insensitively. Without a query the
// window must be set. Results never carry context.
func (s *Service) SearchMessages(ctx context.Context, req SearchRequest) ([]store.Message, error) {
	text := strings.TrimSpace(req.Query)
	q, err := s.prepare(req.SenderID, strings.TrimSpace(req.ChatJID), text, req.Window, req.Page)
	if err != nil {
		return nil, err
	}
	if text == "" && q.filter.After.IsZero() && q.filter.Before.IsZero() {
		return nil, apperr.Invalid("query", "either a non-empty query or a time window must be provided")
	}
	page, err := s.run(ctx, "search_messages", q)
	return page.Messages, err
}

// SearchChatMessages searches within one chat. Both chatJID and text are
// required.
func (s *Service) SearchChatMessages(ctx context.Context, chatJID, text string, window timewindow.Params, page Page) ([]store.Message, error) {
	jid, err := requireChatJID(chatJID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Invalid("query", "must be a non-empty string")
	}
	return s.SearchMessages(ctx, SearchRequest{Query: text, ChatJID: jid, Window: window, Page: page})
}

// GetMessageContext returns a message with up to before/after neighbours.
// chatJID may be empty; a bare id reused across chats resolves to the most
// recent match.
func (s *Service) GetMessageContext(ctx context.Context, messageID, chatJID string, before, after int) (*msgcontext.Context, error) {
	id := strings.TrimSpace(messageID)
	var out *msgcontext.Context
	err := s.withReader(ctx, func(r *store.Reader) error {
		c, err := msgcontext.Assemble(ctx, r, id, strings.TrimSpace(chatJID), before, after)
		out = c
		return err
	})
	if err != nil {
		return nil, lookupErr("get message context", err)
	}
	return out, nil
}

// prepare validates and resolves everything that needs no storage.
func (s *Service) prepare(senderID, chatJID, text string, window timewindow.Params, page Page) (messageQuery, error) {
	if err := page.validate(); err != nil {
		return messageQuery{}, err
	}
	sender, err := identity.Canonicalize(senderID)
	if err != nil {
		return messageQuery{}, err
	}
	w, err := s.windows.Resolve(window)
	if err != nil {
		return messageQuery{}, err
	}
	return messageQuery{
		sender: sender,
		filter: store.MessageFilter{
			ChatJID: chatJID,
			Query:   text,
			After:   w.After,
			Before:  w.Before,
			Limit:   page.Limit,
			Offset:  page.offset(),
		},
	}, nil
}

func (s *Service) run(ctx context.Context, op string, q messageQuery) (MessagePage, error) {
	var page MessagePage
	err := s.withReader(ctx, func(r *store.Reader) error {
		f := q.filter
		if q.sender != "" {
			exp, err := r.Expand(ctx, q.sender)
			if err != nil {
				return err
			}
			f.SenderIDs = exp.Candidates
		}
		msgs, err := r.Messages(ctx, f)
		if err != nil {
			return err
		}
		if !q.context.Include {
			page.Messages = msgs
			return nil
		}
		contexts := make([]msgcontext.Context, 0, len(msgs))
		for _, m := range msgs {
			c, err := msgcontext.Expand(ctx, r, m, q.context.Before, q.context.After)
			if err != nil {
				return err
			}
			contexts = append(contexts, *c)
		}
		page.Contexts = contexts
		return nil
	})
	if err != nil {
		return MessagePage{}, s.degrade(op, err)
	}
	return page, nil
}

func requireSender(raw string) (string, error) {
	id, err := identity.Canonicalize(raw)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", apperr.Invalid("sender_id", "must be a non-empty string")
	}
	return id, nil
}
