package amm

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-guard/internal/authority"
	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/storage"
	"solana-launch-guard/internal/storage/memory"
)

var pumpfun = domain.MustPubkey("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

func governor(t *testing.T) (*authority.Ed25519Verifier, ed25519.PrivateKey) {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 42
	priv := ed25519.NewKeyFromSeed(seed)
	pub, err := domain.PubkeyFromBytes(priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return authority.NewEd25519Verifier([]domain.Pubkey{pub}), priv
}

func TestClassifier_DefaultPrograms(t *testing.T) {
	c := NewClassifier(DefaultPrograms(), nil, nil)

	assert.True(t, c.IsAMMAccount(domain.MustPubkey(RaydiumAMMV4)))
	assert.True(t, c.IsAMMAccount(domain.MustPubkey(OrcaWhirlpool)))
	assert.True(t, c.IsAMMAccount(domain.MustPubkey(OrcaLegacy)))
	assert.False(t, c.IsAMMAccount(domain.MustPubkey("So11111111111111111111111111111111111111112")))
	assert.Len(t, c.Members(), 3)
}

func TestClassifier_GovernanceAddRemove(t *testing.T) {
	verifier, key := governor(t)
	c := NewClassifier(nil, verifier, nil)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, authority.Sign(key, authority.ActionAddAMM, pumpfun.String(), time.Now()), pumpfun))
	assert.True(t, c.IsAMMAccount(pumpfun))

	require.NoError(t, c.Remove(ctx, authority.Sign(key, authority.ActionRemoveAMM, pumpfun.String(), time.Now()), pumpfun))
	assert.False(t, c.IsAMMAccount(pumpfun))
}

func TestClassifier_RejectsUnsignedChanges(t *testing.T) {
	verifier, key := governor(t)
	c := NewClassifier(DefaultPrograms(), verifier, nil)
	raydium := domain.MustPubkey(RaydiumAMMV4)

	// credential for add cannot be used to remove
	cred := authority.Sign(key, authority.ActionAddAMM, raydium.String(), time.Now())
	err := c.Remove(context.Background(), cred, raydium)
	assert.ErrorIs(t, err, authority.ErrBadSignature)
	assert.True(t, c.IsAMMAccount(raydium))

	noGov := NewClassifier(nil, nil, nil)
	err = noGov.Add(context.Background(), cred, raydium)
	assert.ErrorIs(t, err, authority.ErrUnauthorized)
	assert.False(t, noGov.IsAMMAccount(raydium))
}

func TestClassifier_RejectsZeroProgram(t *testing.T) {
	verifier, key := governor(t)
	c := NewClassifier(nil, verifier, nil)

	err := c.Add(context.Background(), authority.Sign(key, authority.ActionAddAMM, domain.Pubkey{}.String(), time.Now()), domain.Pubkey{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	assert.Empty(t, c.Members())
}

func TestLoadClassifier_GovernanceSurvivesRestart(t *testing.T) {
	verifier, key := governor(t)
	ctx := context.Background()
	store := memory.NewAMMStore()
	raydium := domain.MustPubkey(RaydiumAMMV4)

	c, err := LoadClassifier(ctx, store, DefaultPrograms(), verifier, nil)
	require.NoError(t, err)
	require.NoError(t, c.Remove(ctx, authority.Sign(key, authority.ActionRemoveAMM, raydium.String(), time.Now()), raydium))
	require.NoError(t, c.Add(ctx, authority.Sign(key, authority.ActionAddAMM, pumpfun.String(), time.Now()), pumpfun))

	restarted, err := LoadClassifier(ctx, store, DefaultPrograms(), verifier, nil)
	require.NoError(t, err)
	assert.False(t, restarted.IsAMMAccount(raydium), "removed venue is not re-seeded")
	assert.True(t, restarted.IsAMMAccount(pumpfun))
	assert.True(t, restarted.IsAMMAccount(domain.MustPubkey(OrcaWhirlpool)))
	assert.Equal(t, c.Members(), restarted.Members())
}

func TestClassifier_RefreshSeesOtherWriter(t *testing.T) {
	verifier, key := governor(t)
	ctx := context.Background()
	store := memory.NewAMMStore()

	api, err := LoadClassifier(ctx, store, nil, verifier, nil)
	require.NoError(t, err)
	watcher, err := LoadClassifier(ctx, store, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, api.Add(ctx, authority.Sign(key, authority.ActionAddAMM, pumpfun.String(), time.Now()), pumpfun))
	assert.False(t, watcher.IsAMMAccount(pumpfun))

	require.NoError(t, watcher.Refresh(ctx))
	assert.True(t, watcher.IsAMMAccount(pumpfun))
}

type failingAMMStore struct {
	*memory.AMMStore
}

func (failingAMMStore) SetActive(context.Context, domain.Pubkey, bool, int64) error {
	return errors.New("unavailable")
}

func TestClassifier_StoreFailureLeavesSetUnchanged(t *testing.T) {
	verifier, key := governor(t)
	ctx := context.Background()

	c, err := LoadClassifier(ctx, failingAMMStore{memory.NewAMMStore()}, DefaultPrograms(), verifier, nil)
	require.NoError(t, err)

	err = c.Add(ctx, authority.Sign(key, authority.ActionAddAMM, pumpfun.String(), time.Now()), pumpfun)
	assert.Error(t, err)
	assert.False(t, c.IsAMMAccount(pumpfun))
	assert.Len(t, c.Members(), 3)
}

func TestResolvePrograms(t *testing.T) {
	got, err := ResolvePrograms([]string{"raydium", OrcaLegacy})
	require.NoError(t, err)
	assert.Equal(t, []domain.Pubkey{domain.MustPubkey(RaydiumAMMV4), domain.MustPubkey(OrcaLegacy)}, got)

	_, err = ResolvePrograms([]string{"uniswap"})
	assert.Error(t, err)
}
