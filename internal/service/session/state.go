// Package session drives one voice-widget activation: credential fetch,
// relay-forced connect, transcript merge and delivery, and teardown.
package session

import (
	"errors"
	"fmt"

	"voice-widget/internal/service/token"
)

// State represents the lifecycle state of a session.
//
// State transitions:
//
//	IDLE → TOKEN_PENDING → CONNECTING → CONNECTED → DISCONNECTED → IDLE
//	            │               │
//	            └──────┬────────┘
//	                   └──→ FAILED ── Activate() ──→ TOKEN_PENDING
//
// Rules:
//   - Only CONNECTED processes transcription updates.
//   - TOKEN_PENDING, CONNECTING and FAILED can be cancelled (back to IDLE).
//   - DISCONNECTED is transient: teardown runs and the session returns to IDLE.
//   - There is no automatic retry or reconnect.
type State int

const (
	// StateIdle - No activation in progress.
	StateIdle State = iota
	// StateTokenPending - Waiting for the session credential.
	StateTokenPending
	// StateConnecting - Credential obtained, relay-forced connect in progress.
	StateConnecting
	// StateConnected - Live; transcription updates are merged and delivered.
	StateConnected
	// StateDisconnected - Local or remote hangup; teardown in progress.
	StateDisconnected
	// StateFailed - Token fetch or connect failed. Terminal for this activation.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTokenPending:
		return "TOKEN_PENDING"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// CanCancel reports whether the cancel affordance is offered: before the
// session is connected, and after a failure.
func (s State) CanCancel() bool {
	return s == StateTokenPending || s == StateConnecting || s == StateFailed
}

// CanActivate reports whether Activate is allowed from this state.
func (s State) CanActivate() bool {
	return s == StateIdle || s == StateFailed
}

// MarshalText renders the state name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Errors for session establishment and invalid transitions.
var (
	// ErrTokenFetch - the credential request failed (network or non-2xx).
	ErrTokenFetch = token.ErrTokenFetch
	// ErrConnect - the relay-forced connect failed.
	ErrConnect = errors.New("session connect failed")
	// ErrAlreadyActive - Activate called while an activation is in progress or live.
	ErrAlreadyActive = errors.New("session already active")
	// ErrNotCancellable - Cancel called outside TOKEN_PENDING, CONNECTING or FAILED.
	ErrNotCancellable = errors.New("session cannot be cancelled in this state")
	// ErrCancelled - the activation was cancelled or torn down before it completed.
	ErrCancelled = errors.New("session activation cancelled")
)
