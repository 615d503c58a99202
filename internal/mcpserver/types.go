package mcpserver

import (
	"github.com/krishhrana/whatsapp-mcp/internal/msgcontext"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
)

// Tool inputs are flat; optional pointer fields fall back to the defaults in
// their descriptions.

type ListMessagesInput struct {
	SenderID       string `json:"sender_id,omitempty" jsonschema:"Optional canonical normalized user ID (no JID suffix)"`
	ChatJID        string `json:"chat_jid,omitempty" jsonschema:"Optional chat JID"`
	AfterISO       string `json:"after_iso,omitempty" jsonschema:"Optional lower ISO-8601 timestamp bound (exclusive)"`
	BeforeISO      string `json:"before_iso,omitempty" jsonschema:"Optional upper ISO-8601 timestamp bound (exclusive)"`
	LookbackValue  *int   `json:"lookback_value,omitempty" jsonschema:"Optional relative lookback amount. Use either absolute bounds or lookback, not both"`
	LookbackUnit   string `json:"lookback_unit,omitempty" jsonschema:"Optional lookback unit, one of h, d, w"`
	Limit          *int   `json:"limit,omitempty" jsonschema:"Maximum number of results to return. Default 20"`
	Page           *int   `json:"page,omitempty" jsonschema:"Page number for pagination (0-based). Default 0"`
	IncludeContext *bool  `json:"include_context,omitempty" jsonschema:"Whether to include messages before and after each result. Default true"`
	ContextBefore  *int   `json:"context_before,omitempty" jsonschema:"Number of context messages before each result. Default 1"`
	ContextAfter   *int   `json:"context_after,omitempty" jsonschema:"Number of context messages after each result. Default 1"`
}

type SenderMessagesInput struct {
	SenderID       string `json:"sender_id" jsonschema:"Canonical normalized user ID to filter messages by sender"`
	AfterISO       string `json:"after_iso,omitempty" jsonschema:"Optional lower ISO-8601 timestamp bound (exclusive)"`
	BeforeISO      string `json:"before_iso,omitempty" jsonschema:"Optional upper ISO-8601 timestamp bound (exclusive)"`
	LookbackValue  *int   `json:"lookback_value,omitempty" jsonschema:"Optional relative lookback amount. Use either absolute bounds or lookback, not both"`
	LookbackUnit   string `json:"lookback_unit,omitempty" jsonschema:"Optional lookback unit, one of h, d, w"`
	Limit          *int   `json:"limit,omitempty" jsonschema:"Maximum number of results to return. Default 20"`
	Page           *int   `json:"page,omitempty" jsonschema:"Page number for pagination (0-based). Default 0"`
	IncludeContext *bool  `json:"include_context,omitempty" jsonschema:"Whether to include messages before and after each result. Default true"`
	ContextBefore  *int   `json:"context_before,omitempty" jsonschema:"Number of context messages before each result. Default 1"`
	ContextAfter   *int   `json:"context_after,omitempty" jsonschema:"Number of context messages after each result. Default 1"`
}

type ChatMessagesInput struct {
	ChatJID        string `json:"chat_jid" jsonschema:"Chat JID to filter messages by chat"`
	AfterISO       string `json:"after_iso,omitempty" jsonschema:"Optional lower ISO-8601 timestamp bound (exclusive)"`
	BeforeISO      string `json:"before_iso,omitempty" jsonschema:"Optional upper ISO-8601 timestamp bound (exclusive)"`
	LookbackValue  *int   `json:"lookback_value,omitempty" jsonschema:"Optional relative lookback amount. Use either absolute bounds or lookback, not both"`
	LookbackUnit   string `json:"lookback_unit,omitempty" jsonschema:"Optional lookback unit, one of h, d, w"`
	Limit          *int   `json:"limit,omitempty" jsonschema:"Maximum number of results to return. Default 20"`
	Page           *int   `json:"page,omitempty" jsonschema:"Page number for pagination (0-based). Default 0"`
	IncludeContext *bool  `json:"include_context,omitempty" jsonschema:"Whether to include messages before and after each result. Default true"`
	ContextBefore  *int   `json:"context_before,omitempty" jsonschema:"Number of context messages before each result. Default 1"`
	ContextAfter   *int   `json:"context_after,omitempty" jsonschema:"Number of context messages after each result. Default 1"`
}

type SearchMessagesInput struct {
	Query         string `json:"query,omitempty" jsonschema:"Optional text to match message content. If empty a time window is required"`
	SenderID      string `json:"sender_id,omitempty" jsonschema:"Optional canonical normalized user ID to filter messages by sender"`
	AfterISO      string `json:"after_iso,omitempty" jsonschema:"Optional lower ISO-8601 timestamp bound (exclusive)"`
	BeforeISO     string `json:"before_iso,omitempty" jsonschema:"Optional upper ISO-8601 timestamp bound (exclusive)"`
	LookbackValue *int   `json:"lookback_value,omitempty" jsonschema:"Optional relative lookback amount. Use either absolute bounds or lookback, not both"`
	LookbackUnit  string `json:"lookback_unit,omitempty" jsonschema:"Optional lookback unit, one of h, d, w"`
	Limit         *int   `json:"limit,omitempty" jsonschema:"Maximum number of results to return. Default 20"`
	Page          *int   `json:"page,omitempty" jsonschema:"Page number for pagination (0-based). Default 0"`
}

type SearchChatMessagesInput struct {
	ChatJID       string `json:"chat_jid" jsonschema:"Chat JID to scope the search to"`
	Query         string `json:"query" jsonschema:"Non-empty text to match message content"`
	AfterISO      string `json:"after_iso,omitempty" jsonschema:"Optional lower ISO-8601 timestamp bound (exclusive)"`
	BeforeISO     string `json:"before_iso,omitempty" jsonschema:"Optional upper ISO-8601 timestamp bound (exclusive)"`
	LookbackValue *int   `json:"lookback_value,omitempty" jsonschema:"Optional relative lookback amount. Use either absolute bounds or lookback, not both"`
	LookbackUnit  string `json:"lookback_unit,omitempty" jsonschema:"Optional lookback unit, one of h, d, w"`
	Limit         *int   `json:"limit,omitempty" jsonschema:"Maximum number of results to return. Default 20"`
	Page          *int   `json:"page,omitempty" jsonschema:"Page number for pagination (0-based). Default 0"`
}

type MessageContextInput struct {
	MessageID string `json:"message_id" jsonschema:"The ID of the message to get context for"`
	ChatJID   string `json:"chat_jid,omitempty" jsonschema:"Optional chat JID; message IDs are only unique within a chat"`
	Before    *int   `json:"before,omitempty" jsonschema:"Number of messages to include before the target. Default 5"`
	After     *int   `json:"after,omitempty" jsonschema:"Number of messages to include after the target. Default 5"`
}

type ListChatsInput struct {
	Query              string `json:"query,omitempty" jsonschema:"Optional text matched against chat name or JID"`
	SortBy             string `json:"sort_by,omitempty" jsonschema:"last_active (default) or name"`
	IncludeLastMessage *bool  `json:"include_last_message,omitempty" jsonschema:"Whether to include the last message of each chat. Default true"`
	Limit              *int   `json:"limit,omitempty" jsonschema:"Maximum number of results to return. Default 20"`
	Page               *int   `json:"page,omitempty" jsonschema:"Page number for pagination (0-based). Default 0"`
}

type ChatByIDInput struct {
	ChatJID            string `json:"chat_jid" jsonschema:"The JID of the chat to retrieve"`
	IncludeLastMessage *bool  `json:"include_last_message,omitempty" jsonschema:"Whether to include the last message. Default true"`
}

type ContactInput struct {
	SenderID string `json:"sender_id" jsonschema:"Canonical normalized user ID (no JID suffix)"`
}

type ContactChatsInput struct {
	SenderID string `json:"sender_id" jsonschema:"Canonical normalized user ID (no JID suffix)"`
	Limit    *int   `json:"limit,omitempty" jsonschema:"Maximum number of results to return. Default 20"`
	Page     *int   `json:"page,omitempty" jsonschema:"Page number for pagination (0-based). Default 0"`
}

type SearchContactsInput struct {
	Query string `json:"query" jsonschema:"Search term matched against contact names or phone numbers"`
}

type SendMessageInput struct {
	Recipient string `json:"recipient" jsonschema:"Phone number with country code and no symbols, or a JID such as 123456789@s.whatsapp.net or 123456789@g.us"`
	Message   string `json:"message" jsonschema:"The message text to send"`
}

type SendMediaInput struct {
	Recipient string `json:"recipient" jsonschema:"Phone number with country code and no symbols, or a JID such as 123456789@s.whatsapp.net or 123456789@g.us"`
	MediaPath string `json:"media_path" jsonschema:"Absolute path to the file to send"`
}

type DownloadMediaInput struct {
	MessageID string `json:"message_id" jsonschema:"The ID of the message containing the media"`
	ChatJID   string `json:"chat_jid" jsonschema:"The JID of the chat containing the message"`
}

// MessageInfo is the wire form of a message.
type MessageInfo struct {
	Timestamp string `json:"timestamp"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	IsFromMe  bool   `json:"is_from_me"`
	ChatJID   string `json:"chat_jid"`
	ID        string `json:"id"`
	ChatName  string `json:"chat_name,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// ContextInfo is a message with its neighbours, nearest first.
type ContextInfo struct {
	Message MessageInfo   `json:"message"`
	Before  []MessageInfo `json:"before"`
	After   []MessageInfo `json:"after"`
}

type ChatInfo struct {
	ChatJID         string `json:"chat_jid"`
	Name            string `json:"name,omitempty"`
	IsGroup         bool   `json:"is_group"`
	LastMessageTime string `json:"last_message_time,omitempty"`
	LastMessage     string `json:"last_message,omitempty"`
	LastSenderID    string `json:"last_sender_id,omitempty"`
	LastIsFromMe    bool   `json:"last_is_from_me"`
}

type ContactInfo struct {
	SenderID string `json:"sender_id"`
	Name     string `json:"name,omitempty"`
	ChatJID  string `json:"chat_jid"`
}

// MessagesOutput carries Messages, or Contexts when context was requested.
type MessagesOutput struct {
	Messages []MessageInfo `json:"messages,omitempty"`
	Contexts []ContextInfo `json:"contexts,omitempty"`
	Count    int           `json:"count"`
}

type ChatsOutput struct {
	Chats []ChatInfo `json:"chats"`
	Count int        `json:"count"`
}

// ChatOutput has a null chat when none matched.
type ChatOutput struct {
	Chat *ChatInfo `json:"chat"`
}

type ContactsOutput struct {
	Contacts []ContactInfo `json:"contacts"`
	Count    int           `json:"count"`
}

// InteractionOutput has null fields when there was no interaction.
type InteractionOutput struct {
	Text    *string      `json:"text" jsonschema:"Formatted message line"`
	Message *MessageInfo `json:"message"`
}

type DeliveryOutput struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FilePath string `json:"file_path,omitempty"`
}

// NewMessageInfo converts m to its wire form.
func NewMessageInfo(m store.Message) MessageInfo {
	return MessageInfo{
		Timestamp: isoTime(m.Timestamp),
		SenderID:  m.SenderID,
		Content:   m.Content,
		IsFromMe:  m.IsFromMe,
		ChatJID:   m.ChatJID,
		ID:        m.ID,
		ChatName:  m.ChatName,
		MediaType: m.MediaType,
	}
}

func NewMessageInfos(msgs []store.Message) []MessageInfo {
	out := make([]MessageInfo, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessageInfo(m))
	}
	return out
}

// NewContextInfo converts c to its wire form.
func NewContextInfo(c msgcontext.Context) ContextInfo {
	return ContextInfo{
		Message: NewMessageInfo(c.Message),
		Before:  NewMessageInfos(c.Before),
		After:   NewMessageInfos(c.After),
	}
}

// NewChatInfo converts c to its wire form.
func NewChatInfo(c store.Chat) ChatInfo {
	return ChatInfo{
		ChatJID:         c.JID,
		Name:            c.Name,
		IsGroup:         c.IsGroup(),
		LastMessageTime: isoTime(c.LastMessageTime),
		LastMessage:     c.LastMessage,
		LastSenderID:    c.LastSenderID,
		LastIsFromMe:    c.LastIsFromMe,
	}
}

func NewChatInfos(chats []store.Chat) []ChatInfo {
	out := make([]ChatInfo, 0, len(chats))
	for _, c := range chats {
		out = append(out, NewChatInfo(c))
	}
	return out
}
