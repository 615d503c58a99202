package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/krishhrana/whatsapp-mcp/internal/mcpserver"
	"github.com/krishhrana/whatsapp-mcp/internal/query"
	"github.com/krishhrana/whatsapp-mcp/internal/timewindow"
)

type windowFlags struct {
	after    string
	before   string
	lookback int
	unit     string
	fs       *pflag.FlagSet
}

func (w *windowFlags) register(fs *pflag.FlagSet) {
	w.fs = fs
	fs.StringVar(&w.after, "after", "", "Only messages after this ISO-8601 time")
	fs.StringVar(&w.before, "before", "", "Only messages before this ISO-8601 time")
	fs.IntVar(&w.lookback, "lookback", 0, "Relative window size, with --unit")
	fs.StringVar(&w.unit, "unit", "", "Lookback unit: h, d or w")
}

func (w *windowFlags) params() timewindow.Params {
	p := timewindow.Params{After: w.after, Before: w.before, LookbackUnit: w.unit}
	if w.fs.Changed("lookback") {
		v := w.lookback
		p.LookbackValue = &v
	}
	return p
}

type pageFlags struct {
	limit int
	page  int
}

func (p *pageFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&p.limit, "limit", query.DefaultLimit, "Results per page")
	fs.IntVar(&p.page, "page", 0, "Zero-based page number")
}

func (p *pageFlags) value() query.Page {
	return query.Page{Limit: p.limit, Page: p.page}
}

func (a *app) messagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List, search and inspect messages",
	}
	cmd.AddCommand(a.messagesListCmd(), a.messagesSearchCmd(), a.messagesContextCmd())
	return cmd
}

func (a *app) messagesListCmd() *cobra.Command {
	var (
		sender, chat string
		window       windowFlags
		page         pageFlags
		withContext  bool
		ctxBefore    int
		ctxAfter     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, f, err := a.service()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			res, err := svc.ListMessages(ctx, query.ListRequest{
				SenderID: sender,
				ChatJID:  chat,
				Window:   window.params(),
				Page:     page.value(),
				Context:  query.ContextOptions{Include: withContext, Before: ctxBefore, After: ctxAfter},
			})
			if err != nil {
				return err
			}
			out := mcpserver.MessagesOutput{Count: res.Len()}
			if res.Contexts != nil {
				parts := make([]string, 0, len(res.Contexts))
				for _, c := range res.Contexts {
					out.Contexts = append(out.Contexts, mcpserver.NewContextInfo(c))
					parts = append(parts, f.Context(ctx, c))
				}
				return a.emit(out, func() string {
					if len(parts) == 0 {
						return "No messages to display."
					}
					return strings.TrimRight(strings.Join(parts, "\n"), "\n")
				})
			}
			out.Messages = mcpserver.NewMessageInfos(res.Messages)
			return a.emit(out, func() string {
				return strings.TrimRight(f.Messages(ctx, res.Messages, true), "\n")
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&sender, "sender", "", "Sender id; aliases are included")
	fs.StringVar(&chat, "chat", "", "Chat JID")
	window.register(fs)
	page.register(fs)
	fs.BoolVar(&withContext, "context", false, "Show surrounding messages for each hit")
	fs.IntVar(&ctxBefore, "context-before", query.DefaultContextBefore, "Messages before each hit")
	fs.IntVar(&ctxAfter, "context-after", query.DefaultContextAfter, "Messages after each hit")
	return cmd
}

func (a *app) messagesSearchCmd() *cobra.Command {
	var (
		sender, chat string
		window       windowFlags
		page         pageFlags
	)
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search message content; without text a time window is required",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, f, err := a.service()
			if err != nil {
				return err
			}
			text := ""
			if len(args) == 1 {
				text = args[0]
			}
			msgs, err := svc.SearchMessages(cmd.Context(), query.SearchRequest{
				Query:    text,
				SenderID: sender,
				ChatJID:  chat,
				Window:   window.params(),
				Page:     page.value(),
			})
			if err != nil {
				return err
			}
			out := mcpserver.MessagesOutput{Messages: mcpserver.NewMessageInfos(msgs), Count: len(msgs)}
			return a.emit(out, func() string {
				return strings.TrimRight(f.Messages(cmd.Context(), msgs, true), "\n")
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&sender, "sender", "", "Sender id; aliases are included")
	fs.StringVar(&chat, "chat", "", "Chat JID")
	window.register(fs)
	page.register(fs)
	return cmd
}

func (a *app) messagesContextCmd() *cobra.Command {
	var (
		chat          string
		before, after int
	)
	cmd := &cobra.Command{
		Use:   "context <message-id>",
		Short: "Show a message with its neighbours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, f, err := a.service()
			if err != nil {
				return err
			}
			c, err := svc.GetMessageContext(cmd.Context(), args[0], chat, before, after)
			if err != nil {
				return err
			}
			return a.emit(mcpserver.NewContextInfo(*c), func() string {
				return strings.TrimRight(f.Context(cmd.Context(), *c), "\n")
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&chat, "chat", "", "Chat JID; ids are only unique within a chat")
	fs.IntVar(&before, "before", query.DefaultAround, "Messages before the target")
	fs.IntVar(&after, "after", query.DefaultAround, "Messages after the target")
	return cmd
}
