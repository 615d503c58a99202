package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/krishhrana/whatsapp-mcp/internal/daemon"
	"github.com/krishhrana/whatsapp-mcp/internal/lock"
)

func (a *app) healthCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Ask a running wppmcp daemon for its health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			socket := a.cfg.HealthSocket
			resp, err := daemon.Check(ctx, socket)
			if err != nil {
				if _, statErr := os.Stat(socket); errors.Is(statErr, os.ErrNotExist) {
					return fmt.Errorf("no daemon listening on %s", socket)
				}
				return err
			}
			if a.jsonOut {
				b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(a.out, string(b))
				return err
			}
			fmt.Fprintf(a.out, "Status: %s\n", resp.Status)
			if info, err := lock.Holder(filepath.Dir(socket)); err == nil {
				fmt.Fprintf(a.out, "PID:    %d\n", info.PID)
				fmt.Fprintf(a.out, "Uptime: %s\n", time.Since(info.Started).Truncate(time.Second))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for the daemon")
	return cmd
}
