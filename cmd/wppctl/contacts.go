package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/krishhrana/whatsapp-mcp/internal/apperr"
	"github.com/krishhrana/whatsapp-mcp/internal/format"
	"github.com/krishhrana/whatsapp-mcp/internal/mcpserver"
)

func (a *app) contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Find contacts and their chats",
	}
	cmd.AddCommand(a.contactsSearchCmd(), a.contactsChatsCmd(), a.contactsDirectCmd(), a.contactsLastCmd())
	return cmd
}

func (a *app) contactsSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <text>",
		Short: "Search contacts by name or number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := a.service()
			if err != nil {
				return err
			}
			contacts, err := svc.SearchContacts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := mcpserver.ContactsOutput{Contacts: []mcpserver.ContactInfo{}, Count: len(contacts)}
			lines := make([]string, 0, len(contacts))
			for _, c := range contacts {
				out.Contacts = append(out.Contacts, mcpserver.ContactInfo{SenderID: c.SenderID, Name: c.Name, ChatJID: c.ChatJID})
				lines = append(lines, format.Contact(c))
			}
			return a.emit(out, func() string {
				if len(lines) == 0 {
					return "No contacts found."
				}
				return strings.Join(lines, "\n")
			})
		},
	}
}

func (a *app) contactsChatsCmd() *cobra.Command {
	var page pageFlags
	cmd := &cobra.Command{
		Use:   "chats <sender-id>",
		Short: "List every chat involving a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := a.service()
			if err != nil {
				return err
			}
			chats, err := svc.GetContactChats(cmd.Context(), args[0], page.value())
			if err != nil {
				return err
			}
			return a.emitChats(chats)
		},
	}
	page.register(cmd.Flags())
	return cmd
}

func (a *app) contactsDirectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "direct <sender-id>",
		Short: "Show the direct chat with a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := a.service()
			if err != nil {
				return err
			}
			c, err := svc.GetDirectChatByContact(cmd.Context(), args[0])
			return a.emitChat(c, err)
		},
	}
}

func (a *app) contactsLastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "last <sender-id>",
		Short: "Show the most recent message with a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, f, err := a.service()
			if err != nil {
				return err
			}
			m, err := svc.GetLastInteraction(cmd.Context(), args[0])
			if apperr.IsNotFound(err) {
				return a.emit(mcpserver.InteractionOutput{}, func() string { return "null" })
			}
			if err != nil {
				return err
			}
			line := strings.TrimRight(f.Message(cmd.Context(), *m, true), "\n")
			info := mcpserver.NewMessageInfo(*m)
			return a.emit(mcpserver.InteractionOutput{Text: &line, Message: &info}, func() string { return line })
		},
	}
}
