package escrow

import (
	"context"
	"crypto/ed25519"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-launch-guard/internal/audit"
	"solana-launch-guard/internal/authority"
	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/policy"
	"solana-launch-guard/internal/storage"
	"solana-launch-guard/internal/storage/memory"
	"solana-launch-guard/internal/token"
)

var (
	testPool      = domain.MustPubkey("58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2")
	testLPMint    = domain.MustPubkey("So11111111111111111111111111111111111111112")
	testProgram   = domain.MustPubkey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	depositorATA  = domain.MustPubkey("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	recipientATA  = domain.MustPubkey("HN7cABqLq46Es1jh92dQQisAq662SmxELLLsHHe4YWrH")
	testStartTime = time.Unix(1700000000, 0)
)

func keypair(t *testing.T, b byte) (domain.Pubkey, ed25519.PrivateKey) {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = b
	priv := ed25519.NewKeyFromSeed(seed)
	pub, err := domain.PubkeyFromBytes(priv.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return pub, priv
}

type fixture struct {
	ledger    *Ledger
	tokens    *token.Ledger
	events    *memory.PolicyEventStore
	governor  ed25519.PrivateKey
	attestKey ed25519.PrivateKey
	depositor token.Authority
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.NewEscrowStore())
}

func newFixtureWithStore(t *testing.T, store storage.EscrowStore) *fixture {
	t.Helper()
	ctx := context.Background()

	govPub, govKey := keypair(t, 1)
	attPub, attKey := keypair(t, 2)
	walletPub, _ := keypair(t, 3)

	now := testStartTime
	clock := func() time.Time { return now }

	attestor := NewEd25519Attestor([]domain.Pubkey{attPub}, time.Minute)
	attestor.now = clock

	tokens := token.NewLedger()
	events := memory.NewPolicyEventStore()

	l, err := NewLedger(Config{
		Store:     store,
		Tokens:    tokens,
		ProgramID: testProgram,
		Verifier:  authority.NewEd25519Verifier([]domain.Pubkey{govPub}, authority.WithClock(clock)),
		Attestor:  attestor,
		Recorder:  audit.NewRecorder(events, nil),
	})
	require.NoError(t, err)
	l.now = clock

	require.NoError(t, tokens.OpenAccount(ctx, depositorATA, testLPMint, walletPub))
	require.NoError(t, tokens.OpenAccount(ctx, recipientATA, testLPMint, walletPub))
	require.NoError(t, tokens.MintTo(ctx, depositorATA, 1000))

	depositor, err := token.WalletAuthority(walletPub)
	require.NoError(t, err)

	return &fixture{
		ledger:    l,
		tokens:    tokens,
		events:    events,
		governor:  govKey,
		attestKey: attKey,
		depositor: depositor,
		now:       now,
	}
}

func (f *fixture) initialize(t *testing.T, minHolders, minVolume uint64) *domain.EscrowRecord {
	t.Helper()
	cred := authority.Sign(f.governor, authority.ActionInitEscrow, testPool.String(), f.now)
	r, err := f.ledger.Initialize(context.Background(), cred, testPool, testLPMint, minHolders, minVolume)
	require.NoError(t, err)
	return r
}

func (f *fixture) balance(t *testing.T, addr domain.Pubkey) uint64 {
	t.Helper()
	acct, err := f.tokens.Account(context.Background(), addr)
	require.NoError(t, err)
	return acct.Amount
}

func TestLockShare(t *testing.T) {
	tests := []struct {
		amount uint64
		want   uint64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{99, 59},
		{100, 60},
		{1000, 600},
		{1001, 600},
		{math.MaxUint64, 11068046444225730969},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LockShare(tt.amount), "amount %d", tt.amount)
	}
}

func TestLedger_Initialize(t *testing.T) {
	f := newFixture(t)
	r := f.initialize(t, 100, 50000)

	assert.Equal(t, domain.EscrowLocked, r.State)
	assert.Equal(t, uint64(0), r.LockedAmount)
	assert.Equal(t, uint64(100), r.MinHolders)
	assert.Equal(t, uint64(50000), r.MinVolumeUSD)

	vault, err := f.tokens.Account(context.Background(), r.Vault)
	require.NoError(t, err)
	assert.Equal(t, r.Address, vault.Owner, "vault must be owned by the escrow address")
	assert.Equal(t, testLPMint, vault.Mint)
}

func TestLedger_InitializeRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t, 1, 1)

	cred := authority.Sign(f.governor, authority.ActionInitEscrow, testPool.String(), f.now)
	_, err := f.ledger.Initialize(ctx, cred, testPool, testLPMint, 5, 5)
	assert.ErrorIs(t, err, policy.ErrAlreadyInitialized)

	_, stranger := keypair(t, 9)
	other := domain.MustPubkey("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	_, err = f.ledger.Initialize(ctx, authority.Sign(stranger, authority.ActionInitEscrow, other.String(), f.now), other, testLPMint, 1, 1)
	assert.ErrorIs(t, err, authority.ErrUnauthorized)

	_, err = f.ledger.Get(ctx, other)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedger_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.initialize(t, 100, 50000)

	r, lock, err := f.ledger.Deposit(ctx, testPool, 1000, depositorATA, f.depositor)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), lock)
	assert.Equal(t, uint64(600), r.LockedAmount)
	assert.Equal(t, uint64(400), f.balance(t, depositorATA))
	assert.Equal(t, uint64(600), f.balance(t, r.Vault))

	_, err = f.ledger.Withdraw(ctx, testPool, 1, recipientATA)
	assert.ErrorIs(t, err, policy.ErrEscrowStillLocked)

	_, err = f.ledger.CheckAndUnlock(ctx, testPool, 99, 50000)
	assert.ErrorIs(t, err, policy.ErrInsufficientHolders)

	_, err = f.ledger.CheckAndUnlock(ctx, testPool, 100, 49999)
	assert.ErrorIs(t, err, policy.ErrInsufficientVolume)

	r, err = f.ledger.CheckAndUnlock(ctx, testPool, 100, 50000)
	require.NoError(t, err)
	assert.True(t, r.IsUnlocked())

	_, err = f.ledger.CheckAndUnlock(ctx, testPool, 1000, 1000000)
	assert.ErrorIs(t, err, policy.ErrEscrowAlreadyUnlocked)

	r, err = f.ledger.Withdraw(ctx, testPool, 600, recipientATA)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.LockedAmount)
	assert.Equal(t, uint64(600), f.balance(t, recipientATA))
	assert.Equal(t, uint64(0), f.balance(t, r.Vault))

	_, err = f.ledger.Withdraw(ctx, testPool, 1, recipientATA)
	assert.ErrorIs(t, err, policy.ErrInsufficientBalance)
	assert.True(t, policy.IsKind(err, policy.KindBalanceViolation))
}

func TestLedger_HoldersCheckedBeforeVolume(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 100, 50000)

	_, err := f.ledger.CheckAndUnlock(context.Background(), testPool, 0, 0)
	assert.ErrorIs(t, err, policy.ErrInsufficientHolders)
	assert.NotErrorIs(t, err, policy.ErrInsufficientVolume)
}

func TestLedger_ZeroThresholdsUnlockImmediately(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, 0, 0)

	r, err := f.ledger.CheckAndUnlock(context.Background(), testPool, 0, 0)
	require.NoError(t, err)
	assert.True(t, r.IsUnlocked())
}

func TestLedger_FailedDepositChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.initialize(t, 1, 1)

	strangerPub, _ := keypair(t, 8)
	stranger, err := token.WalletAuthority(strangerPub)
	require.NoError(t, err)

	_, _, err = f.ledger.Deposit(ctx, testPool, 1000, depositorATA, stranger)
	assert.ErrorIs(t, err, token.ErrOwnerMismatch)

	_, _, err = f.ledger.Deposit(ctx, testPool, 5000, depositorATA, f.depositor)
	assert.ErrorIs(t, err, token.ErrInsufficientFunds)

	got, err := f.ledger.Get(ctx, testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.LockedAmount)
	assert.Equal(t, uint64(1000), f.balance(t, depositorATA))
	assert.Equal(t, uint64(0), f.balance(t, r.Vault))
}

func TestLedger_RepeatedDepositsAccumulate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.initialize(t, 1, 1)

	var total uint64
	for _, amount := range []uint64{100, 250, 3} {
		_, lock, err := f.ledger.Deposit(ctx, testPool, amount, depositorATA, f.depositor)
		require.NoError(t, err)
		total += lock
	}

	got, err := f.ledger.Get(ctx, testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(60+150+1), total)
	assert.Equal(t, total, got.LockedAmount)
	assert.Equal(t, total, f.balance(t, r.Vault))
}

func TestLedger_DepositUnknownPool(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.ledger.Deposit(context.Background(), testPool, 1000, depositorATA, f.depositor)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, uint64(1000), f.balance(t, depositorATA))
}

func TestLedger_VaultOnlyDebitedByLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.initialize(t, 1, 1)
	_, _, err := f.ledger.Deposit(ctx, testPool, 1000, depositorATA, f.depositor)
	require.NoError(t, err)

	_, err = token.WalletAuthority(r.Address)
	assert.ErrorIs(t, err, token.ErrInvalidAuthority, "escrow address is off-curve")

	_, err = f.tokens.RegisterProgram(testProgram)
	assert.ErrorIs(t, err, token.ErrProgramRegistered)

	err = f.tokens.Transfer(ctx, r.Vault, recipientATA, f.depositor, 1)
	assert.ErrorIs(t, err, token.ErrOwnerMismatch)

	err = f.tokens.Transfer(ctx, r.Vault, recipientATA, token.Authority{}, 1)
	assert.ErrorIs(t, err, token.ErrInvalidAuthority)

	assert.Equal(t, uint64(600), f.balance(t, r.Vault))
}

func TestNewLedger_SignerIssuedOnce(t *testing.T) {
	tokens := token.NewLedger()
	_, err := NewLedger(Config{Store: memory.NewEscrowStore(), Tokens: tokens, ProgramID: testProgram})
	require.NoError(t, err)

	_, err = NewLedger(Config{Store: memory.NewEscrowStore(), Tokens: tokens, ProgramID: testProgram})
	assert.ErrorIs(t, err, token.ErrProgramRegistered)
}

func TestNewLedger_RejectsZeroProgramID(t *testing.T) {
	tokens := token.NewLedger()
	_, err := NewLedger(Config{Store: memory.NewEscrowStore(), Tokens: tokens})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	// the zero id was never claimed, so a real program can still register
	_, err = NewLedger(Config{Store: memory.NewEscrowStore(), Tokens: tokens, ProgramID: testProgram})
	assert.NoError(t, err)
}

var errCommitFailed = errors.New("commit failed")

// commitFailingStore runs fn against the stored record like a real
// transaction would, then reports a failed commit without storing anything.
type commitFailingStore struct {
	*memory.EscrowStore
	failing bool
}

func (s *commitFailingStore) Update(ctx context.Context, pool domain.Pubkey, fn storage.EscrowUpdateFunc) (*domain.EscrowRecord, error) {
	if !s.failing {
		return s.EscrowStore.Update(ctx, pool, fn)
	}
	r, err := s.EscrowStore.GetByPool(ctx, pool)
	if err != nil {
		return nil, err
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	return nil, errCommitFailed
}

func TestLedger_FailedCommitMovesNoTokens(t *testing.T) {
	store := &commitFailingStore{EscrowStore: memory.NewEscrowStore()}
	f := newFixtureWithStore(t, store)
	ctx := context.Background()
	r := f.initialize(t, 0, 0)

	t.Run("deposit", func(t *testing.T) {
		store.failing = true
		_, _, err := f.ledger.Deposit(ctx, testPool, 1000, depositorATA, f.depositor)
		assert.ErrorIs(t, err, errCommitFailed)

		got, err := f.ledger.Get(ctx, testPool)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), got.LockedAmount)
		assert.Equal(t, uint64(1000), f.balance(t, depositorATA))
		assert.Equal(t, uint64(0), f.balance(t, r.Vault))
	})

	t.Run("withdraw", func(t *testing.T) {
		store.failing = false
		_, _, err := f.ledger.Deposit(ctx, testPool, 1000, depositorATA, f.depositor)
		require.NoError(t, err)
		_, err = f.ledger.CheckAndUnlock(ctx, testPool, 0, 0)
		require.NoError(t, err)

		store.failing = true
		_, err = f.ledger.Withdraw(ctx, testPool, 600, recipientATA)
		assert.ErrorIs(t, err, errCommitFailed)

		got, err := f.ledger.Get(ctx, testPool)
		require.NoError(t, err)
		assert.Equal(t, uint64(600), got.LockedAmount)
		assert.Equal(t, uint64(600), f.balance(t, r.Vault))
		assert.Equal(t, uint64(0), f.balance(t, recipientATA))

		// the refunded vault still pays out once the store commits
		store.failing = false
		_, err = f.ledger.Withdraw(ctx, testPool, 600, recipientATA)
		require.NoError(t, err)
		assert.Equal(t, uint64(600), f.balance(t, recipientATA))
	})
}

func TestLedger_EventsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initialize(t, 1, 1)

	_, _, err := f.ledger.Deposit(ctx, testPool, 1000, depositorATA, f.depositor)
	require.NoError(t, err)
	_, err = f.ledger.Withdraw(ctx, testPool, 1, recipientATA)
	require.Error(t, err)

	events, err := f.events.GetBySubject(ctx, testPool.String())
	require.NoError(t, err)

	byKind := map[domain.EventKind]*domain.PolicyEvent{}
	for _, e := range events {
		byKind[e.Kind] = e
	}
	require.Contains(t, byKind, domain.EventEscrowInit)
	require.Contains(t, byKind, domain.EventEscrowDeposit)
	require.Contains(t, byKind, domain.EventEscrowWithdraw)

	assert.Equal(t, uint64(600), byKind[domain.EventEscrowDeposit].Amount)
	assert.Equal(t, domain.OutcomeRejected, byKind[domain.EventEscrowWithdraw].Outcome)
	assert.Equal(t, "EscrowStillLocked", byKind[domain.EventEscrowWithdraw].Reason)
}
