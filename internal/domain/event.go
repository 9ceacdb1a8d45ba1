package domain

// EventKind identifies the operation recorded in the policy event log.
type EventKind string

const (
	EventTransferCheck     EventKind = "TRANSFER_CHECK"
	EventProtectionInit    EventKind = "PROTECTION_INIT"
	EventProtectionDisable EventKind = "PROTECTION_DISABLE"
	EventEscrowInit        EventKind = "ESCROW_INIT"
	EventEscrowDeposit     EventKind = "ESCROW_DEPOSIT"
	EventEscrowUnlock      EventKind = "ESCROW_UNLOCK"
	EventEscrowWithdraw    EventKind = "ESCROW_WITHDRAW"
	EventAMMSetChanged     EventKind = "AMM_SET_CHANGED"
)

// Outcome is the result recorded for an event.
type Outcome string

const (
	OutcomeAllow    Outcome = "ALLOW"
	OutcomeBlock    Outcome = "BLOCK"
	OutcomeOK       Outcome = "OK"
	OutcomeRejected Outcome = "REJECTED"
)

// PolicyEvent is one row in the append-only policy event log.
// Corresponds to policy_events table in ClickHouse.
type PolicyEvent struct {
	EventID      string    // deterministic hash or request-scoped id
	Kind         EventKind // operation
	Subject      string    // mint or pool address
	Actor        string    // source owner, depositor, signer
	Counterparty string    // destination owner, recipient
	Amount       uint64    // LP units for escrow events, 0 otherwise
	Outcome      Outcome   // ALLOW | BLOCK | OK | REJECTED
	Reason       string    // error code or block reason
	TimestampMs  int64     // event time (ms)
}
