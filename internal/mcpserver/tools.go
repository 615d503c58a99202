package mcpserver

import (
	"context"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/krishhrana/whatsapp-mcp/internal/apperr"
	"github.com/krishhrana/whatsapp-mcp/internal/delivery"
	"github.com/krishhrana/whatsapp-mcp/internal/format"
	"github.com/krishhrana/whatsapp-mcp/internal/query"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
)

// registerTools registers all MCP tool handlers with the server.
func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search_contacts",
		Description: "Search WhatsApp contacts by name or phone number. Returns at most 50 contacts, one per person.",
	}, s.handleSearchContacts)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_messages",
		Description: "List WhatsApp messages filtered by optional sender, chat and time window, newest first.",
	}, s.handleListMessages)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_messages_for_sender_id",
		Description: "List messages sent by one person, including messages sent under any of their linked ids.",
	}, s.handleListForSender)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_messages_for_chat_id",
		Description: "List messages of one chat, newest first.",
	}, s.handleListForChat)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search_messages",
		Description: "Search message content across all chats. Requires a query or a time window.",
	}, s.handleSearchMessages)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "search_chat_messages",
		Description: "Search message content within one chat.",
	}, s.handleSearchChatMessages)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_message_context",
		Description: "Get the messages around a specific message in its chat.",
	}, s.handleMessageContext)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_chats",
		Description: "List chats matching an optional name or JID query, by last activity or name.",
	}, s.handleListChats)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_chat_metadata_by_id",
		Description: "Get chat metadata by JID. Returns a null chat when it does not exist.",
	}, s.handleChatByID)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_chat_metadata_by_contact_id",
		Description: "Get the direct chat with a contact. Returns a null chat when there is none.",
	}, s.handleChatByContact)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_all_chats_for_contact",
		Description: "List every chat involving a contact: their direct chat and groups they wrote in.",
	}, s.handleContactChats)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_last_interaction_for_contact",
		Description: "Get the most recent message sent by or to a contact.",
	}, s.handleLastInteraction)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "send_message",
		Description: "Send a WhatsApp text message to a person or group.",
	}, s.handleSendMessage)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "send_file",
		Description: "Send a picture, video, document or other file to a person or group.",
	}, s.handleSendFile)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "send_audio_message",
		Description: "Send an Opus .ogg file as a playable WhatsApp voice message.",
	}, s.handleSendAudio)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "download_media",
		Description: "Download the media of a message and return the local file path.",
	}, s.handleDownloadMedia)
}

func (s *Server) handleSearchContacts(ctx context.Context, _ *gomcp.CallToolRequest, in SearchContactsInput) (*gomcp.CallToolResult, ContactsOutput, error) {
	_, done := s.call("search_contacts")
	contacts, err := s.query.SearchContacts(ctx, in.Query)
	done(err)
	if err != nil {
		return nil, ContactsOutput{}, err
	}
	out := ContactsOutput{Contacts: make([]ContactInfo, 0, len(contacts)), Count: len(contacts)}
	lines := make([]string, 0, len(contacts))
	for _, c := range contacts {
		out.Contacts = append(out.Contacts, ContactInfo{SenderID: c.SenderID, Name: c.Name, ChatJID: c.ChatJID})
		lines = append(lines, format.Contact(c))
	}
	if len(lines) == 0 {
		return text("No contacts found."), out, nil
	}
	return text(strings.Join(lines, "\n")), out, nil
}

func (s *Server) handleListMessages(ctx context.Context, _ *gomcp.CallToolRequest, in ListMessagesInput) (*gomcp.CallToolResult, MessagesOutput, error) {
	_, done := s.call("list_messages")
	p, err := s.query.ListMessages(ctx, query.ListRequest{
		SenderID: in.SenderID,
		ChatJID:  in.ChatJID,
		Window:   window(in.AfterISO, in.BeforeISO, in.LookbackValue, in.LookbackUnit),
		Page:     page(in.Limit, in.Page),
		Context:  contextOptions(in.IncludeContext, in.ContextBefore, in.ContextAfter),
	})
	done(err)
	return s.messagePage(ctx, p, err)
}

func (s *Server) handleListForSender(ctx context.Context, _ *gomcp.CallToolRequest, in SenderMessagesInput) (*gomcp.CallToolResult, MessagesOutput, error) {
	_, done := s.call("list_messages_for_sender_id")
	p, err := s.query.ListMessagesForSender(ctx, in.SenderID, window(in.AfterISO, in.BeforeISO, in.LookbackValue, in.LookbackUnit), page(in.Limit, in.Page), contextOptions(in.IncludeContext, in.ContextBefore, in.ContextAfter))
	done(err)
	return s.messagePage(ctx, p, err)
}

func (s *Server) handleListForChat(ctx context.Context, _ *gomcp.CallToolRequest, in ChatMessagesInput) (*gomcp.CallToolResult, MessagesOutput, error) {
	_, done := s.call("list_messages_for_chat_id")
	p, err := s.query.ListMessagesForChat(ctx, in.ChatJID, window(in.AfterISO, in.BeforeISO, in.LookbackValue, in.LookbackUnit), page(in.Limit, in.Page), contextOptions(in.IncludeContext, in.ContextBefore, in.ContextAfter))
	done(err)
	return s.messagePage(ctx, p, err)
}

func (s *Server) handleSearchMessages(ctx context.Context, _ *gomcp.CallToolRequest, in SearchMessagesInput) (*gomcp.CallToolResult, MessagesOutput, error) {
	_, done := s.call("search_messages")
	msgs, err := s.query.SearchMessages(ctx, query.SearchRequest{
		Query:    in.Query,
		SenderID: in.SenderID,
		Window:   window(in.AfterISO, in.BeforeISO, in.LookbackValue, in.LookbackUnit),
		Page:     page(in.Limit, in.Page),
	})
	done(err)
	return s.messagePage(ctx, query.MessagePage{Messages: msgs}, err)
}

func (s *Server) handleSearchChatMessages(ctx context.Context, _ *gomcp.CallToolRequest, in SearchChatMessagesInput) (*gomcp.CallToolResult, MessagesOutput, error) {
	_, done := s.call("search_chat_messages")
	msgs, err := s.query.SearchChatMessages(ctx, in.ChatJID, in.Query, window(in.AfterISO, in.BeforeISO, in.LookbackValue, in.LookbackUnit), page(in.Limit, in.Page))
	done(err)
	return s.messagePage(ctx, query.MessagePage{Messages: msgs}, err)
}

// messagePage renders a listing both as text and as structured output.
func (s *Server) messagePage(ctx context.Context, p query.MessagePage, err error) (*gomcp.CallToolResult, MessagesOutput, error) {
	if err != nil {
		return nil, MessagesOutput{}, err
	}
	out := MessagesOutput{Count: p.Len()}
	if p.Contexts != nil {
		out.Contexts = make([]ContextInfo, 0, len(p.Contexts))
		var b strings.Builder
		for i, c := range p.Contexts {
			out.Contexts = append(out.Contexts, NewContextInfo(c))
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(s.format.Context(ctx, c))
		}
		if len(p.Contexts) == 0 {
			return text("No messages to display."), out, nil
		}
		return text(b.String()), out, nil
	}
	out.Messages = NewMessageInfos(p.Messages)
	return text(s.format.Messages(ctx, p.Messages, true)), out, nil
}

func (s *Server) handleMessageContext(ctx context.Context, _ *gomcp.CallToolRequest, in MessageContextInput) (*gomcp.CallToolResult, ContextInfo, error) {
	_, done := s.call("get_message_context")
	c, err := s.query.GetMessageContext(ctx, in.MessageID, in.ChatJID,
		intOr(in.Before, query.DefaultAround), intOr(in.After, query.DefaultAround))
	done(err)
	if err != nil {
		return nil, ContextInfo{}, err
	}
	return text(s.format.Context(ctx, *c)), NewContextInfo(*c), nil
}

func (s *Server) handleListChats(ctx context.Context, _ *gomcp.CallToolRequest, in ListChatsInput) (*gomcp.CallToolResult, ChatsOutput, error) {
	_, done := s.call("list_chats")
	chats, err := s.query.ListChats(ctx, query.ChatsRequest{
		Query:       in.Query,
		Sort:        in.SortBy,
		IncludeLast: boolOr(in.IncludeLastMessage, true),
		Page:        page(in.Limit, in.Page),
	})
	done(err)
	return chatList(chats, err)
}

func (s *Server) handleContactChats(ctx context.Context, _ *gomcp.CallToolRequest, in ContactChatsInput) (*gomcp.CallToolResult, ChatsOutput, error) {
	_, done := s.call("get_all_chats_for_contact")
	chats, err := s.query.GetContactChats(ctx, in.SenderID, page(in.Limit, in.Page))
	done(err)
	return chatList(chats, err)
}

func chatList(chats []store.Chat, err error) (*gomcp.CallToolResult, ChatsOutput, error) {
	if err != nil {
		return nil, ChatsOutput{}, err
	}
	out := ChatsOutput{Chats: NewChatInfos(chats), Count: len(chats)}
	if len(chats) == 0 {
		return text("No chats found."), out, nil
	}
	lines := make([]string, 0, len(chats))
	for _, c := range chats {
		lines = append(lines, format.Chat(c))
	}
	return text(strings.Join(lines, "\n")), out, nil
}

func (s *Server) handleChatByID(ctx context.Context, _ *gomcp.CallToolRequest, in ChatByIDInput) (*gomcp.CallToolResult, ChatOutput, error) {
	_, done := s.call("get_chat_metadata_by_id")
	c, err := s.query.GetChat(ctx, in.ChatJID, boolOr(in.IncludeLastMessage, true))
	done(err)
	return oneChat(c, err)
}

func (s *Server) handleChatByContact(ctx context.Context, _ *gomcp.CallToolRequest, in ContactInput) (*gomcp.CallToolResult, ChatOutput, error) {
	_, done := s.call("get_chat_metadata_by_contact_id")
	c, err := s.query.GetDirectChatByContact(ctx, in.SenderID)
	done(err)
	return oneChat(c, err)
}

// oneChat renders a point lookup. A miss is a null chat, not an error.
func oneChat(c *store.Chat, err error) (*gomcp.CallToolResult, ChatOutput, error) {
	if apperr.IsNotFound(err) {
		return text("null"), ChatOutput{}, nil
	}
	if err != nil {
		return nil, ChatOutput{}, err
	}
	info := NewChatInfo(*c)
	return text(format.Chat(*c)), ChatOutput{Chat: &info}, nil
}

func (s *Server) handleLastInteraction(ctx context.Context, _ *gomcp.CallToolRequest, in ContactInput) (*gomcp.CallToolResult, InteractionOutput, error) {
	_, done := s.call("get_last_interaction_for_contact")
	m, err := s.query.GetLastInteraction(ctx, in.SenderID)
	done(err)
	if apperr.IsNotFound(err) {
		return text("null"), InteractionOutput{}, nil
	}
	if err != nil {
		return nil, InteractionOutput{}, err
	}
	line := strings.TrimRight(s.format.Message(ctx, *m, true), "\n")
	info := NewMessageInfo(*m)
	return text(line), InteractionOutput{Text: &line, Message: &info}, nil
}

func (s *Server) handleSendMessage(ctx context.Context, req *gomcp.CallToolRequest, in SendMessageInput) (*gomcp.CallToolResult, DeliveryOutput, error) {
	log, done := s.call("send_message")
	r := s.delivery.SendMessage(ctx, s.authorization(req), in.Recipient, in.Message)
	done(nil)
	return deliveryResult(log, r)
}

func (s *Server) handleSendFile(ctx context.Context, req *gomcp.CallToolRequest, in SendMediaInput) (*gomcp.CallToolResult, DeliveryOutput, error) {
	log, done := s.call("send_file")
	r := s.delivery.SendFile(ctx, s.authorization(req), in.Recipient, in.MediaPath)
	done(nil)
	return deliveryResult(log, r)
}

func (s *Server) handleSendAudio(ctx context.Context, req *gomcp.CallToolRequest, in SendMediaInput) (*gomcp.CallToolResult, DeliveryOutput, error) {
	log, done := s.call("send_audio_message")
	r := s.delivery.SendAudio(ctx, s.authorization(req), in.Recipient, in.MediaPath)
	done(nil)
	return deliveryResult(log, r)
}

func (s *Server) handleDownloadMedia(ctx context.Context, req *gomcp.CallToolRequest, in DownloadMediaInput) (*gomcp.CallToolResult, DeliveryOutput, error) {
	log, done := s.call("download_media")
	r := s.delivery.Download(ctx, s.authorization(req), in.MessageID, in.ChatJID)
	done(nil)
	return deliveryResult(log, r)
}

// deliveryResult passes a bridge outcome through. Bridge failures are
// results with success false, never tool errors.
func deliveryResult(log *zap.Logger, r delivery.Result) (*gomcp.CallToolResult, DeliveryOutput, error) {
	if !r.Success {
		log.Warn("bridge call failed", zap.String("reason", r.Message))
	}
	out := DeliveryOutput{Success: r.Success, Message: r.Message, FilePath: r.Path}
	if r.Path != "" {
		return text(r.Message + ": " + r.Path), out, nil
	}
	return text(r.Message), out, nil
}
