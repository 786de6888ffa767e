package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL       string
	ChainID      string
	Bech32Prefix string

	CW20CodeID    uint64
	EscrowCodeIDs []uint64

	FeeDenom  string
	FeeAmount string
	Gas       uint64

	DAOURLPrefix        string
	DAOUpFee            string
	DAOUpDAOAddress     string
	FeeManagerAddress   string
	FeaturedListAddress string
	DenyListAddress     string

	PayTokenDenom    string
	PayTokenSymbol   string
	PayTokenDecimals int
	BaseURL          string

	KeyFile    string
	PGDSN      string
	Out        string
	Checkpoint string
	Listen     string
	LogLevel   string

	FilterDebounce time.Duration
	TxTimeout      time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	Concurrency    int
	BatchSize      int
}

// EscrowCodeID returns the code id new campaigns are instantiated from.
func (c Config) EscrowCodeID() uint64 {
	if len(c.EscrowCodeIDs) == 0 {
		return 0
	}
	return c.EscrowCodeIDs[len(c.EscrowCodeIDs)-1]
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DAOUP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", "https://juno-rpc.polkachu.com")
	v.SetDefault("chain-id", "juno-1")
	v.SetDefault("bech32-prefix", "juno")
	v.SetDefault("fee-denom", "ujuno")
	v.SetDefault("fee-amount", "10000")
	v.SetDefault("gas", uint64(400000))
	v.SetDefault("dao-url-prefix", "https://daodao.zone/dao/")
	v.SetDefault("pay-token-denom", "ujuno")
	v.SetDefault("pay-token-symbol", "JUNO")
	v.SetDefault("pay-token-decimals", 6)
	v.SetDefault("base-url", "https://daoup.zone")
	v.SetDefault("key-file", "./data/key.hex")
	v.SetDefault("out", "./data/campaigns.jsonl")
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")
	v.SetDefault("filter-debounce", 350*time.Millisecond)
	v.SetDefault("tx-timeout", 60*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("concurrency", 8)
	v.SetDefault("batch-size", 50)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	escrowCodeIDs, err := parseCodeIDs(getStringSlice(v, "escrow-code-ids"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:       v.GetString("rpc"),
		ChainID:      v.GetString("chain-id"),
		Bech32Prefix: v.GetString("bech32-prefix"),

		CW20CodeID:    v.GetUint64("cw20-code-id"),
		EscrowCodeIDs: escrowCodeIDs,

		FeeDenom:  v.GetString("fee-denom"),
		FeeAmount: v.GetString("fee-amount"),
		Gas:       v.GetUint64("gas"),

		DAOURLPrefix:        v.GetString("dao-url-prefix"),
		DAOUpFee:            v.GetString("daoup-fee"),
		DAOUpDAOAddress:     v.GetString("daoup-dao-address"),
		FeeManagerAddress:   v.GetString("fee-manager-address"),
		FeaturedListAddress: v.GetString("featured-list-address"),
		DenyListAddress:     v.GetString("deny-list-address"),

		PayTokenDenom:    v.GetString("pay-token-denom"),
		PayTokenSymbol:   v.GetString("pay-token-symbol"),
		PayTokenDecimals: v.GetInt("pay-token-decimals"),
		BaseURL:          strings.TrimRight(v.GetString("base-url"), "/"),

		KeyFile:    v.GetString("key-file"),
		PGDSN:      v.GetString("pg-dsn"),
		Out:        v.GetString("out"),
		Checkpoint: v.GetString("checkpoint"),
		Listen:     v.GetString("listen"),
		LogLevel:   v.GetString("log-level"),

		FilterDebounce: v.GetDuration("filter-debounce"),
		TxTimeout:      v.GetDuration("tx-timeout"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		Concurrency:    v.GetInt("concurrency"),
		BatchSize:      v.GetInt("batch-size"),
	}

	return cfg, nil
}

func parseCodeIDs(items []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(items))
	for _, item := range items {
		id, err := strconv.ParseUint(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid escrow code id %q: %w", item, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return splitAndClean(strings.Join(typed, ","))
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
