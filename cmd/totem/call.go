package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	chatclient "github.com/totem-tech/chatclient-go"
)

func init() {
	maintenanceCmd.ValidArgs = []string{"on", "off"}

	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(maintenanceCmd)
	rootCmd.AddCommand(eventsCmd)
}

var callCmd = &cobra.Command{
	Use:   "call <event> [args...]",
	Short: "Call any server event",
	Long: "Call a server event with positional arguments. Each argument is parsed as JSON\n" +
		"and sent as a string if it is not valid JSON.\n" +
		"Example: totem call currency-convert BTC USD 1.5",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		event := args[0]
		params := make([]any, 0, len(args)-1)
		for _, a := range args[1:] {
			params = append(params, parseArg(a))
		}

		return withSession(func(ctx context.Context, s *session) error {
			result, err := s.client.Call(ctx, event, params...).Wait()
			if err != nil {
				return fmt.Errorf("%s failed: %w", event, err)
			}
			var v any
			if err := json.Unmarshal(result, &v); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(result))
				return nil
			}
			return printResult(cmd.OutOrStdout(), v)
		})
	},
}

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance [on|off]",
	Short: "Query or toggle server maintenance mode",
	Args:  cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		var active *bool
		if len(args) == 1 {
			v := args[0] == "on"
			active = &v
		}

		return withSession(func(ctx context.Context, s *session) error {
			on, err := s.client.MaintenanceMode(ctx, active).Wait()
			if err != nil {
				return fmt.Errorf("maintenance-mode failed: %w", err)
			}
			if flagJSON {
				return printResult(cmd.OutOrStdout(), map[string]bool{"active": on})
			}
			state := "off"
			if on {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Maintenance mode: %s\n", state)
			return nil
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the events the server accepts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, s *session) error {
			meta, err := s.client.EventsMeta(ctx).Wait()
			if err != nil {
				return fmt.Errorf("events-meta failed: %w", err)
			}
			if flagJSON {
				return printResult(cmd.OutOrStdout(), meta)
			}
			printEvents(cmd, meta)
			return nil
		})
	},
}

func printEvents(cmd *cobra.Command, meta map[string]chatclient.EventMeta) {
	names := make([]string, 0, len(meta))
	for name := range meta {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	for _, name := range names {
		m := meta[name]
		params := make([]string, 0, len(m.Params))
		for _, p := range m.Params {
			s := p.Name
			if p.Type != "" {
				s += ":" + p.Type
			}
			if !p.Required {
				s += "?"
			}
			params = append(params, s)
		}
		fmt.Fprintf(out, "%-28s (%s)", name, strings.Join(params, ", "))
		if m.Result != "" {
			fmt.Fprintf(out, " -> %s", m.Result)
		}
		fmt.Fprintln(out)
		if m.Description != "" {
			fmt.Fprintf(out, "    %s\n", m.Description)
		}
	}
}
