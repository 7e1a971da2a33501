// Package auth implements the scale's pairing and challenge-response
// handshake. The scale hands out a 4-byte password once while in pairing
// mode; on every later connection it sends a challenge that the host must
// answer with challenge XOR password before it accepts a clock sync.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/chaz8081/bodyscale/internal/ble/protocol"
)

var (
	// ErrMissingPassword is returned when a challenge arrives before the
	// scale has been paired. The scale must be put in pairing mode.
	ErrMissingPassword = errors.New("auth: no password stored, re-pair required")
	// ErrAlreadyAuthenticated is returned for a challenge received after
	// the handshake completed. The challenge is ignored.
	ErrAlreadyAuthenticated = errors.New("auth: redundant challenge, already authenticated")
)

// State is the authentication progress of one session.
type State int

const (
	Unauthenticated State = iota
	AwaitingChallengeResponse
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case AwaitingChallengeResponse:
		return "awaiting-challenge-response"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CredentialStore persists the scale password between sessions.
type CredentialStore interface {
	// Load returns the stored password, or nil if none has been saved.
	Load() ([]byte, error)
	// Save replaces the stored password.
	Save(password []byte) error
}

// Options configures a Machine.
type Options struct {
	BroadcastID protocol.BroadcastID
	Now         func() time.Time // clock for the set-UTC command (default time.Now)
}

// Machine is the authentication state machine for one connection. It is
// not safe for concurrent use; the owning session serializes all calls.
type Machine struct {
	state       State
	password    []byte
	broadcastID protocol.BroadcastID
	store       CredentialStore
	now         func() time.Time
}

// NewMachine creates a machine in the Unauthenticated state. password may
// be nil for a scale that has not been paired yet; otherwise it must be
// exactly protocol.KeySize bytes.
func NewMachine(password []byte, store CredentialStore, opts Options) (*Machine, error) {
	if password != nil && len(password) != protocol.KeySize {
		return nil, fmt.Errorf("auth: password must be %d bytes, got %d: %w", protocol.KeySize, len(password), protocol.ErrInvalidKeyLength)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Machine{
		broadcastID: opts.BroadcastID,
		store:       store,
		now:         opts.Now,
	}
	if password != nil {
		m.password = append([]byte(nil), password...)
	}
	return m, nil
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// HasPassword reports whether a password is known for this scale.
func (m *Machine) HasPassword() bool { return m.password != nil }

// HandlePassword adopts a password broadcast by the scale in pairing mode,
// persists it, and returns the set-broadcast-id command to send.
//
// A persistence failure is returned together with the command: the
// password stays active for this session and the command should still be
// sent.
func (m *Machine) HandlePassword(password []byte) ([]byte, error) {
	if len(password) != protocol.KeySize {
		return nil, fmt.Errorf("auth: password is %d bytes: %w", len(password), protocol.ErrInvalidKeyLength)
	}
	m.password = append([]byte(nil), password...)
	cmd := protocol.EncodeSetBroadcastID(m.broadcastID)

	if m.store != nil {
		if err := m.store.Save(m.password); err != nil {
			return cmd, fmt.Errorf("auth: persist password: %w", err)
		}
	}
	return cmd, nil
}

// HandleChallenge answers a challenge. It returns ErrMissingPassword when
// the scale was never paired and ErrAlreadyAuthenticated once the
// handshake is complete; in both cases no command is produced and the
// state does not change.
func (m *Machine) HandleChallenge(challenge []byte) ([]byte, error) {
	if m.password == nil {
		return nil, ErrMissingPassword
	}
	if m.state == Authenticated {
		return nil, ErrAlreadyAuthenticated
	}
	cmd, err := protocol.EncodeAuthResponse(challenge, m.password)
	if err != nil {
		return nil, fmt.Errorf("auth: answer challenge: %w", err)
	}
	m.state = AwaitingChallengeResponse
	return cmd, nil
}

// HandleWriteSucceeded observes the completion of a download command
// write. When the auth response has been delivered the session is
// authenticated and the returned set-UTC command must be sent. Completions
// of any other command return nil.
func (m *Machine) HandleWriteSucceeded(op byte) []byte {
	if m.state != AwaitingChallengeResponse || op != protocol.OpAuthResponse {
		return nil
	}
	m.state = Authenticated
	return protocol.EncodeSetUTC(m.now())
}

// HandleWriteFailed observes a failed download command write. The state is
// left unchanged and nothing is retried. It returns a wrapped error for
// commands that belong to the handshake and nil for the rest.
func (m *Machine) HandleWriteFailed(op byte, err error) error {
	switch op {
	case protocol.OpAuthResponse, protocol.OpSetBroadcastID, protocol.OpSetUTC:
		return fmt.Errorf("auth: %s write failed in state %s: %w", protocol.CommandName(op), m.state, err)
	default:
		return nil
	}
}
