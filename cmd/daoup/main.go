package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "daoup",
		Short:        "DAO Up! crowdfunding client",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "chain RPC URL")
	flags.String("chain-id", "", "chain id")
	flags.String("bech32-prefix", "", "bech32 address prefix")
	flags.StringSlice("escrow-code-ids", nil, "escrow contract code ids; the last one is used to create campaigns")
	flags.String("featured-list-address", "", "featured list contract address")
	flags.String("deny-list-address", "", "deny list contract address")
	flags.String("key-file", "", "hex private key file used as the wallet")
	flags.Int("concurrency", 8, "parallel campaign fetches")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCampaignsCmd(),
		newCampaignCmd(),
		newMeCmd(),
		newSearchCmd(),
		newSyncCmd(),
		newServeCmd(),
		newWalletCmd(),
		newContributeCmd(),
		newRefundCmd(),
		newProposeFundCmd(),
		newUpdateCmd(),
		newCreateCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
