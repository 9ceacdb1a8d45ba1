// Package token is the asset-transfer primitive the policy engines invoke.
// It keeps SPL-style holding accounts (mint, owner, amount) and moves
// balances between them under a verified Authority.
//
// Authorities are capabilities: a wallet authority can only be built for an
// on-curve key, and a program-derived authority can only be produced by the
// ProgramSigner handed out once per program ID. No other path debits an
// account owned by a program-derived address.
package token

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"solana-launch-guard/internal/domain"
	"solana-launch-guard/internal/pda"
)

var (
	// ErrAccountNotFound is returned for unknown holding accounts.
	ErrAccountNotFound = errors.New("token account not found")

	// ErrAccountExists is returned when opening an address twice.
	ErrAccountExists = errors.New("token account already exists")

	// ErrInsufficientFunds is returned when the source balance is below the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOwnerMismatch is returned when the authority does not own the source account.
	ErrOwnerMismatch = errors.New("owner does not match")

	// ErrMintMismatch is returned when source and destination hold different mints.
	ErrMintMismatch = errors.New("account mint mismatch")

	// ErrInvalidAuthority is returned for zero-value or malformed authorities.
	ErrInvalidAuthority = errors.New("invalid authority")

	// ErrProgramRegistered is returned when a program signer was already issued.
	ErrProgramRegistered = errors.New("program signer already issued")

	// ErrOverflow is returned when a credit would overflow the destination balance.
	ErrOverflow = errors.New("balance overflow")
)

// Account is an SPL-style token holding account.
type Account struct {
	Address domain.Pubkey
	Mint    domain.Pubkey
	Owner   domain.Pubkey
	Amount  uint64

	// reserved is credit promised to pending transfers, either as their
	// destination or as a refund to their source. Amount+reserved never overflows.
	reserved uint64
}

// Authority is proof of control over an owner key. The zero value authorizes nothing.
type Authority struct {
	key   domain.Pubkey
	valid bool
}

// Key returns the owner key this authority controls.
func (a Authority) Key() domain.Pubkey {
	return a.key
}

// WalletAuthority returns an authority for an ed25519 wallet key whose transaction
// signature has already been verified by the host. Program-derived addresses are
// off-curve and are rejected here.
func WalletAuthority(key domain.Pubkey) (Authority, error) {
	if !pda.IsOnCurve(key[:]) {
		return Authority{}, fmt.Errorf("%w: %s is not a wallet key", ErrInvalidAuthority, key)
	}
	return Authority{key: key, valid: true}, nil
}

// ProgramSigner signs on behalf of addresses derived from one program ID.
type ProgramSigner struct {
	programID domain.Pubkey
}

// ProgramID returns the program this signer acts for.
func (s *ProgramSigner) ProgramID() domain.Pubkey {
	return s.programID
}

// Sign returns the authority of the address derived from seeds and nonce.
// A signer not issued by RegisterProgram signs nothing.
func (s *ProgramSigner) Sign(seeds [][]byte, nonce uint8) (Authority, error) {
	if s == nil || s.programID.IsZero() {
		return Authority{}, ErrInvalidAuthority
	}
	addr, err := pda.CreateProgramAddress(seeds, nonce, s.programID)
	if err != nil {
		return Authority{}, fmt.Errorf("derive signer: %w", err)
	}
	return Authority{key: addr, valid: true}, nil
}

// Program is the transfer primitive consumed by the escrow ledger.
type Program interface {
	// RegisterProgram issues the only signer for programID.
	RegisterProgram(programID domain.Pubkey) (*ProgramSigner, error)

	// OpenAccount creates an empty holding account.
	OpenAccount(ctx context.Context, address, mint, owner domain.Pubkey) error

	// Transfer moves amount from -> to. The authority must own from.
	Transfer(ctx context.Context, from, to domain.Pubkey, auth Authority, amount uint64) error

	// Prepare validates and debits from, reserving the credit on to. Nothing
	// reaches to until Commit; Rollback refunds from.
	Prepare(ctx context.Context, from, to domain.Pubkey, auth Authority, amount uint64) (Pending, error)

	// Account returns a snapshot of a holding account.
	Account(ctx context.Context, address domain.Pubkey) (Account, error)
}

// Pending is a prepared transfer. The first Commit or Rollback applies it and
// later calls do nothing. Neither can fail: Prepare reserved what they need.
type Pending interface {
	Commit()
	Rollback()
}

// Ledger is an in-memory Program.
type Ledger struct {
	mu       sync.Mutex
	accounts map[domain.Pubkey]*Account
	programs map[domain.Pubkey]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[domain.Pubkey]*Account),
		programs: make(map[domain.Pubkey]struct{}),
	}
}

// RegisterProgram implements Program.
func (l *Ledger) RegisterProgram(programID domain.Pubkey) (*ProgramSigner, error) {
	if programID.IsZero() {
		return nil, fmt.Errorf("%w: zero program id", ErrInvalidAuthority)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.programs[programID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrProgramRegistered, programID)
	}
	l.programs[programID] = struct{}{}
	return &ProgramSigner{programID: programID}, nil
}

// OpenAccount implements Program.
func (l *Ledger) OpenAccount(_ context.Context, address, mint, owner domain.Pubkey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[address]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, address)
	}
	l.accounts[address] = &Account{Address: address, Mint: mint, Owner: owner}
	return nil
}

// MintTo credits amount to an account out of thin air. Used to seed balances.
func (l *Ledger) MintTo(_ context.Context, address domain.Pubkey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	if !acct.canCredit(amount) {
		return ErrOverflow
	}
	acct.Amount += amount
	return nil
}

// canCredit reports whether amount fits on top of the balance and every
// outstanding reservation.
func (a *Account) canCredit(amount uint64) bool {
	sum, carry := bits.Add64(a.Amount, a.reserved, 0)
	if carry != 0 {
		return false
	}
	_, carry = bits.Add64(sum, amount, 0)
	return carry == 0
}

// Transfer implements Program. Either both balances change or neither does.
func (l *Ledger) Transfer(ctx context.Context, from, to domain.Pubkey, auth Authority, amount uint64) error {
	p, err := l.Prepare(ctx, from, to, auth, amount)
	if err != nil {
		return err
	}
	p.Commit()
	return nil
}

// Prepare implements Program.
func (l *Ledger) Prepare(_ context.Context, from, to domain.Pubkey, auth Authority, amount uint64) (Pending, error) {
	if !auth.valid {
		return nil, ErrInvalidAuthority
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src, ok := l.accounts[from]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", from, ErrAccountNotFound)
	}
	dst, ok := l.accounts[to]
	if !ok {
		return nil, fmt.Errorf("destination %s: %w", to, ErrAccountNotFound)
	}
	if src.Owner != auth.key {
		return nil, fmt.Errorf("%w: account %s owned by %s, signed by %s", ErrOwnerMismatch, from, src.Owner, auth.key)
	}
	if src.Mint != dst.Mint {
		return nil, ErrMintMismatch
	}
	if src.Amount < amount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}
	if from == to || amount == 0 {
		return &pendingTransfer{done: true}, nil
	}
	if !dst.canCredit(amount) {
		return nil, ErrOverflow
	}

	// The refund fits: src.Amount+src.reserved already held amount.
	src.Amount -= amount
	src.reserved += amount
	dst.reserved += amount
	return &pendingTransfer{ledger: l, src: src, dst: dst, amount: amount}, nil
}

type pendingTransfer struct {
	ledger   *Ledger
	src, dst *Account
	amount   uint64
	done     bool
}

func (p *pendingTransfer) Commit() {
	p.settle(p.dst)
}

func (p *pendingTransfer) Rollback() {
	p.settle(p.src)
}

func (p *pendingTransfer) settle(to *Account) {
	if p.ledger == nil {
		return
	}
	p.ledger.mu.Lock()
	defer p.ledger.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	p.src.reserved -= p.amount
	p.dst.reserved -= p.amount
	to.Amount += p.amount
}

// Account implements Program.
func (l *Ledger) Account(_ context.Context, address domain.Pubkey) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct, ok := l.accounts[address]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	snapshot := *acct
	snapshot.reserved = 0
	return snapshot, nil
}

var _ Program = (*Ledger)(nil)
