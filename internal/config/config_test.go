package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-guard/internal/amm"
	"solana-launch-guard/internal/domain"
)

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("http-addr", ":8080", "")
	fs.String("postgres-dsn", "", "")
	fs.Bool("use-memory", false, "")
	fs.StringSlice("authority", nil, "")
	fs.StringSlice("amm-programs", nil, "")
	fs.Duration("attestation-max-age", 10*time.Minute, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, DefaultProgramID, cfg.ProgramID)
	assert.Equal(t, 10*time.Minute, cfg.AttestationMaxAge)
	assert.Equal(t, "info", cfg.LogLevel)

	programs, err := cfg.AMMProgramKeys()
	require.NoError(t, err)
	assert.ElementsMatch(t, amm.DefaultPrograms(), programs)
}

func TestLoad_FlagsAndEnv(t *testing.T) {
	t.Setenv("LAUNCHGUARD_POSTGRES_DSN", "postgres://env")
	t.Setenv("LAUNCHGUARD_ATTESTOR_KEY", "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM, HN7cABqLq46Es1jh92dQQisAq662SmxELLLsHHe4YWrH")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{
		"--http-addr=:9000",
		"--use-memory",
		"--authority=9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		"--amm-programs=raydium",
	}))

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.True(t, cfg.UseMemory)
	assert.Equal(t, "postgres://env", cfg.PostgresDSN)

	auths, err := cfg.AuthorityKeys()
	require.NoError(t, err)
	assert.Equal(t, []domain.Pubkey{domain.MustPubkey("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")}, auths)

	attestors, err := cfg.AttestorPubkeys()
	require.NoError(t, err)
	assert.Len(t, attestors, 2)

	programs, err := cfg.AMMProgramKeys()
	require.NoError(t, err)
	assert.Equal(t, []domain.Pubkey{domain.MustPubkey(amm.RaydiumAMMV4)}, programs)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
clickhouse-dsn: clickhouse://file
mint: So11111111111111111111111111111111111111112
authority:
  - 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM
`), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "clickhouse://file", cfg.ClickHouseDSN)
	assert.Equal(t, "So11111111111111111111111111111111111111112", cfg.Mint)
	assert.Equal(t, []string{"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"}, cfg.Authorities)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestParseKeys_Invalid(t *testing.T) {
	cfg := Config{Authorities: []string{"not-base58!"}}
	_, err := cfg.AuthorityKeys()
	assert.Error(t, err)
}

func TestParsePrivateKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 2
	want := ed25519.NewKeyFromSeed(seed)

	tests := []struct {
		name  string
		input string
	}{
		{"hex seed", hex.EncodeToString(seed)},
		{"base58 seed", base58.Encode(seed)},
		{"base58 keypair", base58.Encode(want)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrivateKey(tt.input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := ParsePrivateKey("")
	assert.Error(t, err)
	_, err = ParsePrivateKey(base58.Encode([]byte{1, 2, 3}))
	assert.Error(t, err)
}
