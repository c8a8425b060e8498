// Package types defines the shared data model of the wallet security core.
package types

import (
	"encoding/json"
	"time"
)

// WalletAccount is one user-visible wallet slot. The address is the
// canonical identity; at most one account is primary at a time (enforced by
// the registry, not by storage).
type WalletAccount struct {
	Address     string    `json:"address"`
	DisplayName string    `json:"display_name"`
	IsPrimary   bool      `json:"is_primary"`
	CreatedAt   time.Time `json:"created_at"`
}

// ApprovalKind is the operation an untrusted origin is asking for.
type ApprovalKind string

const (
	ApprovalConnect         ApprovalKind = "connect"
	ApprovalSignMessage     ApprovalKind = "sign_message"
	ApprovalSignTransaction ApprovalKind = "sign_transaction"
)

// Valid checks that the kind is one of the three supported operations
func (k ApprovalKind) Valid() bool {
	switch k {
	case ApprovalConnect, ApprovalSignMessage, ApprovalSignTransaction:
		return true
	}
	return false
}

// ApprovalStatus is the lifecycle state of an approval request.
// Pending is the only non-terminal state.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalRequest is one untrusted-origin request awaiting a decision from
// the trusted surface.
type ApprovalRequest struct {
	ID        string          `json:"id"`
	Kind      ApprovalKind    `json:"kind"`
	Origin    string          `json:"origin"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Status    ApprovalStatus  `json:"status"`
}

// TrustedOrigin records a connect approval: the origin may read wallet
// addresses until explicitly revoked.
type TrustedOrigin struct {
	Origin      string    `json:"origin"`
	ConnectedAt time.Time `json:"connected_at"`
}

// SignMessagePayload is the payload of a sign_message approval request.
type SignMessagePayload struct {
	Address string `json:"address"`
	Message string `json:"message"`
}

// TransactionPayload is the payload of a sign_transaction approval request,
// before normalization by the chain client.
type TransactionPayload struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value,omitempty"` // wei, decimal string
	Data  string `json:"data,omitempty"`  // 0x-prefixed calldata
}

// SessionState is the readout consumers use to gate navigation.
type SessionState struct {
	Unlocked       bool       `json:"unlocked"`
	FailedAttempts uint       `json:"failed_attempts"`
	LockoutUntil   *time.Time `json:"lockout_until,omitempty"`
}
