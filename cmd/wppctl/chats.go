package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/krishhrana/whatsapp-mcp/internal/apperr"
	"github.com/krishhrana/whatsapp-mcp/internal/format"
	"github.com/krishhrana/whatsapp-mcp/internal/mcpserver"
	"github.com/krishhrana/whatsapp-mcp/internal/query"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
)

func (a *app) chatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List and inspect chats",
	}
	cmd.AddCommand(a.chatsListCmd(), a.chatsGetCmd())
	return cmd
}

func (a *app) chatsListCmd() *cobra.Command {
	var (
		text, sort string
		noLast     bool
		page       pageFlags
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chats by last activity or name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := a.service()
			if err != nil {
				return err
			}
			chats, err := svc.ListChats(cmd.Context(), query.ChatsRequest{
				Query:       text,
				Sort:        sort,
				IncludeLast: !noLast,
				Page:        page.value(),
			})
			if err != nil {
				return err
			}
			return a.emitChats(chats)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&text, "query", "", "Match chat name or JID")
	fs.StringVar(&sort, "sort", string(store.SortLastActive), "last_active or name")
	fs.BoolVar(&noLast, "no-last", false, "Omit the last message")
	page.register(fs)
	return cmd
}

func (a *app) chatsGetCmd() *cobra.Command {
	var noLast bool
	cmd := &cobra.Command{
		Use:   "get <chat-jid>",
		Short: "Show one chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := a.service()
			if err != nil {
				return err
			}
			c, err := svc.GetChat(cmd.Context(), args[0], !noLast)
			return a.emitChat(c, err)
		},
	}
	cmd.Flags().BoolVar(&noLast, "no-last", false, "Omit the last message")
	return cmd
}

func (a *app) emitChats(chats []store.Chat) error {
	out := mcpserver.ChatsOutput{Chats: mcpserver.NewChatInfos(chats), Count: len(chats)}
	return a.emit(out, func() string {
		if len(chats) == 0 {
			return "No chats found."
		}
		lines := make([]string, 0, len(chats))
		for _, c := range chats {
			lines = append(lines, format.Chat(c))
		}
		return strings.Join(lines, "\n")
	})
}

// emitChat prints a point lookup; a miss prints null rather than failing.
func (a *app) emitChat(c *store.Chat, err error) error {
	if apperr.IsNotFound(err) {
		return a.emit(mcpserver.ChatOutput{}, func() string { return "null" })
	}
	if err != nil {
		return err
	}
	info := mcpserver.NewChatInfo(*c)
	return a.emit(mcpserver.ChatOutput{Chat: &info}, func() string { return format.Chat(*c) })
}
