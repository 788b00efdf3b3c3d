package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/totem-tech/chatclient-go/ss58"
)

var addressPrefix uint16

func init() {
	addressEncodeCmd.Flags().Uint16Var(&addressPrefix, "prefix", ss58.DefaultPrefix, "Network prefix")

	addressCmd.AddCommand(addressEncodeCmd)
	addressCmd.AddCommand(addressDecodeCmd)
	rootCmd.AddCommand(addressCmd)
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Convert between public keys and SS58 addresses",
}

var addressEncodeCmd = &cobra.Command{
	Use:   "encode <hex-public-key>",
	Short: "Encode a public key as an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, err := hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
		if err != nil {
			return fmt.Errorf("invalid hex: %w", err)
		}
		addr := ss58.Encode(pub, addressPrefix)
		if addr == "" {
			return errors.New("cannot encode: unsupported key length or prefix")
		}
		fmt.Fprintln(cmd.OutOrStdout(), addr)
		return nil
	},
}

var addressDecodeCmd = &cobra.Command{
	Use:   "decode <address>",
	Short: "Decode an address into its public key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, prefix, ok := ss58.DecodeWithPrefix(args[0])
		if !ok {
			return errors.New("invalid address")
		}
		out := cmd.OutOrStdout()
		if flagJSON {
			return printResult(out, map[string]any{"publicKey": "0x" + hex.EncodeToString(pub), "prefix": prefix})
		}
		fmt.Fprintf(out, "Public key: 0x%s\n", hex.EncodeToString(pub))
		fmt.Fprintf(out, "Prefix:     %d\n", prefix)
		return nil
	},
}
