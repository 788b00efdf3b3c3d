package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	chatclient "github.com/totem-tech/chatclient-go"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, stored user and live session state",
	Long:  "Display the current configuration and stored user, then connect and report connection, login and maintenance state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session) error {
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Configuration:")
			fmt.Fprintf(out, "  Server:       %s\n", s.cfg.ServerURL())
			fmt.Fprintf(out, "  Call timeout: %s\n", durationText(s.cfg.CallTimeout))
			fmt.Fprintf(out, "  Idle timeout: %s\n", durationText(s.cfg.IdleTimeout))
			fmt.Fprintf(out, "  Language:     %s\n", valueOrDefault(s.cfg.Language, "(not set)"))

			fmt.Fprintln(out)
			fmt.Fprintln(out, "User:")
			u, err := s.client.User()
			if err != nil {
				return err
			}
			if u == nil {
				fmt.Fprintln(out, "  (not registered)")
			} else {
				fmt.Fprintf(out, "  ID:      %s\n", u.ID)
				fmt.Fprintf(out, "  Address: %s\n", valueOrDefault(u.Address, "(unknown)"))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "Live status:")
			if err := s.client.Connect(ctx); err != nil {
				fmt.Fprintf(out, "  Connection failed: %v\n", err)
				return nil
			}
			maintenance, err := s.client.MaintenanceMode(ctx, nil).Wait()
			if err != nil {
				fmt.Fprintf(out, "  Maintenance query failed: %v\n", err)
				return nil
			}
			if u.Valid() {
				if _, err := s.client.Login(ctx, u.ID, u.Secret).Wait(); err != nil {
					fmt.Fprintf(out, "  Login failed: %v\n", err)
				}
			}

			sess := s.client.Session()
			fmt.Fprintf(out, "  Connected:   %t\n", sess.Connected().Value())
			fmt.Fprintf(out, "  Auth:        %s\n", sess.Auth().Value())
			fmt.Fprintf(out, "  Maintenance: %t\n", maintenance)
			return nil
		})
	},
}

func durationText(d chatclient.Duration) string { return time.Duration(d).String() }
