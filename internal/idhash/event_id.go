package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTransferCheckID computes a deterministic event_id for a guard decision
// observed on chain, so replaying the same transaction does not duplicate rows.
// Formula: SHA256(TRANSFER_CHECK|mint|tx_signature|transfer_index)
// Returns hex-encoded hash (64 characters).
func ComputeTransferCheckID(mint, txSignature string, transferIndex int) string {
	data := fmt.Sprintf("TRANSFER_CHECK|%s|%s|%d", mint, txSignature, transferIndex)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeOperationID computes a deterministic event_id for an operation request.
// The outcome and reason are part of the id, so a retry that succeeds after a
// rejection under the same request id is a distinct event.
// Formula: SHA256(kind|subject|request_id|outcome|reason)
// Returns hex-encoded hash (64 characters).
func ComputeOperationID(kind, subject, requestID, outcome, reason string) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s", kind, subject, requestID, outcome, reason)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeCredentialID identifies a signed credential for single-use tracking.
// Formula: SHA256(CREDENTIAL|signer|message)
// Returns hex-encoded hash (64 characters).
func ComputeCredentialID(signer string, message []byte) string {
	data := fmt.Sprintf("CREDENTIAL|%s|%s", signer, message)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
