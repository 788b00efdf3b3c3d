package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	loginID     string
	loginSecret string

	registerReferredBy string
)

func init() {
	loginCmd.Flags().StringVar(&loginID, "id", "", "User ID (default: stored user)")
	loginCmd.Flags().StringVar(&loginSecret, "secret", "", "User secret (default: stored user)")
	registerCmd.Flags().StringVar(&registerReferredBy, "referred-by", "", "Referral code (default: stored referral code)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with the stored or given credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session) error {
			id, secret := loginID, loginSecret
			if id == "" || secret == "" {
				u, err := s.client.User()
				if err != nil {
					return err
				}
				if u == nil || !u.Valid() {
					return errors.New("no stored user; pass --id and --secret or run 'totem register'")
				}
				id, secret = u.ID, u.Secret
			}

			roles, err := s.client.Login(ctx, id, secret).Wait()
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if flagJSON {
				return printResult(out, map[string]any{"id": id, "roles": roles})
			}
			fmt.Fprintf(out, "Logged in as %s\n", id)
			if len(roles) > 0 {
				fmt.Fprintf(out, "  Roles: %s\n", strings.Join(roles, ", "))
			}
			return nil
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <user-id> <address>",
	Short: "Register a new user",
	Long:  "Register a new user with the chat server and store the generated credentials locally.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, address := args[0], args[1]

		return withSession(func(ctx context.Context, s *session) error {
			exists, err := s.client.IDExists(ctx, userID).Wait()
			if err != nil {
				return fmt.Errorf("id check failed: %w", err)
			}
			if exists {
				return fmt.Errorf("user id %q is already taken", userID)
			}

			u, err := s.client.Register(ctx, userID, address, registerReferredBy).Wait()
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if flagJSON {
				return printResult(out, map[string]any{"id": u.ID, "address": u.Address})
			}
			fmt.Fprintln(out, "Registration successful!")
			fmt.Fprintf(out, "  User ID: %s\n", u.ID)
			fmt.Fprintf(out, "  Address: %s\n", u.Address)
			return nil
		})
	},
}
