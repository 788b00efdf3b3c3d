package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	chatclient "github.com/totem-tech/chatclient-go"
)

func init() {
	rootCmd.AddCommand(listenCmd)
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stay connected and print pushed messages and notifications",
	Long:  "Connect, log in with the stored user, and print messages, notifications and session changes until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		s.client.OnMessage(func(m chatclient.ChatMessage) {
			if flagJSON {
				_ = printResult(out, m)
				return
			}
			fmt.Fprintf(out, "[message] %s -> %v: %s\n", m.SenderID, m.ReceiverIDs, m.Message)
		})
		s.client.OnNotification(func(n chatclient.Notification) {
			if flagJSON {
				_ = printResult(out, n)
				return
			}
			fmt.Fprintf(out, "[notification] %s %s/%s: %s\n", n.From, n.Type, n.ChildType, n.Message)
		})

		sess := s.client.Session()
		unsubs := []func(){
			sess.Connected().Subscribe(func(v bool) { fmt.Fprintf(out, "[session] connected=%t\n", v) }),
			sess.Auth().Subscribe(func(v chatclient.AuthState) { fmt.Fprintf(out, "[session] auth=%s\n", v) }),
			sess.Maintenance().Subscribe(func(v bool) { fmt.Fprintf(out, "[session] maintenance=%t\n", v) }),
		}
		defer func() {
			for _, u := range unsubs {
				u()
			}
		}()

		if err := s.client.Connect(ctx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		<-ctx.Done()
		return nil
	},
}
