// Package config loads launch-guard settings from flags, environment and an
// optional config file.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"solana-launch-guard/internal/amm"
	"solana-launch-guard/internal/domain"
)

// EnvPrefix prefixes every environment variable, e.g. LAUNCHGUARD_POSTGRES_DSN.
const EnvPrefix = "LAUNCHGUARD"

// DefaultProgramID is the program id launch-guard records are derived under
// when none is configured.
const DefaultProgramID = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	HTTPAddr          string
	PostgresDSN       string
	ClickHouseDSN     string
	UseMemory         bool
	RPCEndpoint       string
	WSEndpoint        string
	ProgramID         string
	Authorities       []string
	AttestorKeys      []string
	AttestationMaxAge time.Duration
	CredentialMaxAge  time.Duration
	AMMPrograms       []string
	LogLevel          string

	// Command-scoped values.
	Mint          string
	Pool          string
	AttestorSeed  string
	VolumeSince   time.Duration
	BackfillLimit int
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("http-addr", ":8080")
	v.SetDefault("program-id", DefaultProgramID)
	v.SetDefault("attestation-max-age", 10*time.Minute)
	v.SetDefault("credential-max-age", 5*time.Minute)
	v.SetDefault("amm-programs", []string{"raydium", "orca-whirlpool", "orca-legacy"})
	v.SetDefault("log-level", "info")
	v.SetDefault("backfill", 0)

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
		v.SetConfigName("launchguard")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		HTTPAddr:          v.GetString("http-addr"),
		PostgresDSN:       v.GetString("postgres-dsn"),
		ClickHouseDSN:     v.GetString("clickhouse-dsn"),
		UseMemory:         v.GetBool("use-memory"),
		RPCEndpoint:       v.GetString("rpc-endpoint"),
		WSEndpoint:        v.GetString("ws-endpoint"),
		ProgramID:         v.GetString("program-id"),
		Authorities:       getStringSlice(v, "authority"),
		AttestorKeys:      getStringSlice(v, "attestor-key"),
		AttestationMaxAge: v.GetDuration("attestation-max-age"),
		CredentialMaxAge:  v.GetDuration("credential-max-age"),
		AMMPrograms:       getStringSlice(v, "amm-programs"),
		LogLevel:          v.GetString("log-level"),
		Mint:              v.GetString("mint"),
		Pool:              v.GetString("pool"),
		AttestorSeed:      v.GetString("attestor-seed"),
		VolumeSince:       v.GetDuration("volume-since"),
		BackfillLimit:     v.GetInt("backfill"),
	}

	return cfg, nil
}

// Program returns the parsed program id.
func (c Config) Program() (domain.Pubkey, error) {
	return domain.ParsePubkey(c.ProgramID)
}

// AuthorityKeys returns the parsed governance authorities.
func (c Config) AuthorityKeys() ([]domain.Pubkey, error) {
	return parseKeys("authority", c.Authorities)
}

// AttestorPubkeys returns the parsed attestor keys trusted by the escrow ledger.
func (c Config) AttestorPubkeys() ([]domain.Pubkey, error) {
	return parseKeys("attestor-key", c.AttestorKeys)
}

// AMMProgramKeys resolves configured AMM venues, accepting aliases.
func (c Config) AMMProgramKeys() ([]domain.Pubkey, error) {
	if len(c.AMMPrograms) == 0 {
		return amm.DefaultPrograms(), nil
	}
	return amm.ResolvePrograms(c.AMMPrograms)
}

// AttestorPrivateKey decodes the attestor seed, given as 64 hex characters or a
// base58 32-byte seed or 64-byte keypair.
func (c Config) AttestorPrivateKey() (ed25519.PrivateKey, error) {
	return ParsePrivateKey(c.AttestorSeed)
}

// ParsePrivateKey decodes an ed25519 key from hex or base58 text.
func ParsePrivateKey(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("attestor-seed is required")
	}

	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != ed25519.SeedSize {
		raw, err = base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("decode key: %w", err)
		}
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]), nil
	}
	return nil, fmt.Errorf("key: got %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
}

func parseKeys(name string, entries []string) ([]domain.Pubkey, error) {
	out := make([]domain.Pubkey, 0, len(entries))
	for _, e := range entries {
		p, err := domain.ParsePubkey(e)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
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
	return cleanStrings(strings.Split(input, ","))
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
