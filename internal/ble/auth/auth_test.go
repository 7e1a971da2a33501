package auth

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/chaz8081/bodyscale/internal/ble/protocol"
)

// memStore is an in-memory CredentialStore.
type memStore struct {
	saved   [][]byte
	saveErr error
}

func (s *memStore) Load() ([]byte, error) {
	if len(s.saved) == 0 {
		return nil, nil
	}
	return s.saved[len(s.saved)-1], nil
}

func (s *memStore) Save(password []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, append([]byte(nil), password...))
	return nil
}

var (
	testPassword  = []byte{0x11, 0x22, 0x33, 0x44}
	testChallenge = []byte{0xA5, 0x5A, 0x00, 0xFF}
	testBroadcast = protocol.BroadcastID{0x01, 0x02, 0x03, 0x04}
	testNow       = time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
)

func newTestMachine(t *testing.T, password []byte, store CredentialStore) *Machine {
	t.Helper()
	m, err := NewMachine(password, store, Options{
		BroadcastID: testBroadcast,
		Now:         func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	return m
}

func TestNewMachineRejectsBadPassword(t *testing.T) {
	_, err := NewMachine([]byte{1, 2, 3}, nil, Options{})
	if !errors.Is(err, protocol.ErrInvalidKeyLength) {
		t.Errorf("NewMachine() error = %v, want ErrInvalidKeyLength", err)
	}
}

func TestNewMachineStartsUnauthenticated(t *testing.T) {
	m := newTestMachine(t, nil, nil)
	if m.State() != Unauthenticated {
		t.Errorf("State() = %v, want %v", m.State(), Unauthenticated)
	}
	if m.HasPassword() {
		t.Error("HasPassword() = true for a machine created without password")
	}
}

func TestChallengeThenWriteSucceededAuthenticates(t *testing.T) {
	m := newTestMachine(t, testPassword, nil)

	cmd, err := m.HandleChallenge(testChallenge)
	if err != nil {
		t.Fatalf("HandleChallenge() error = %v", err)
	}
	want := []byte{0x20, 0xA5 ^ 0x11, 0x5A ^ 0x22, 0x00 ^ 0x33, 0xFF ^ 0x44}
	if !bytes.Equal(cmd, want) {
		t.Errorf("HandleChallenge() = %x, want %x", cmd, want)
	}
	if m.State() != AwaitingChallengeResponse {
		t.Errorf("State() = %v, want %v", m.State(), AwaitingChallengeResponse)
	}

	var utc [][]byte
	for _, op := range []byte{protocol.OpAuthResponse, protocol.OpAuthResponse} {
		if next := m.HandleWriteSucceeded(op); next != nil {
			utc = append(utc, next)
		}
	}
	if m.State() != Authenticated {
		t.Errorf("State() = %v, want %v", m.State(), Authenticated)
	}
	if len(utc) != 1 {
		t.Fatalf("got %d set-UTC commands, want exactly 1", len(utc))
	}
	if !bytes.Equal(utc[0], protocol.EncodeSetUTC(testNow)) {
		t.Errorf("set-UTC = %x, want %x", utc[0], protocol.EncodeSetUTC(testNow))
	}
}

func TestUnrelatedWriteCompletionDoesNotAuthenticate(t *testing.T) {
	m := newTestMachine(t, testPassword, nil)
	if _, err := m.HandleChallenge(testChallenge); err != nil {
		t.Fatalf("HandleChallenge() error = %v", err)
	}

	if next := m.HandleWriteSucceeded(protocol.OpSetBroadcastID); next != nil {
		t.Errorf("HandleWriteSucceeded(broadcast id) = %x, want nil", next)
	}
	if m.State() != AwaitingChallengeResponse {
		t.Errorf("State() = %v, want %v", m.State(), AwaitingChallengeResponse)
	}
}

func TestWriteSucceededWhileUnauthenticatedIsIgnored(t *testing.T) {
	m := newTestMachine(t, testPassword, nil)
	if next := m.HandleWriteSucceeded(protocol.OpAuthResponse); next != nil {
		t.Errorf("HandleWriteSucceeded() = %x, want nil", next)
	}
	if m.State() != Unauthenticated {
		t.Errorf("State() = %v, want %v", m.State(), Unauthenticated)
	}
}

func TestChallengeWithoutPassword(t *testing.T) {
	m := newTestMachine(t, nil, nil)
	cmd, err := m.HandleChallenge(testChallenge)
	if !errors.Is(err, ErrMissingPassword) {
		t.Errorf("HandleChallenge() error = %v, want ErrMissingPassword", err)
	}
	if cmd != nil {
		t.Errorf("HandleChallenge() = %x, want nil", cmd)
	}
	if m.State() != Unauthenticated {
		t.Errorf("State() = %v, want %v", m.State(), Unauthenticated)
	}
}

func TestRedundantChallengeIgnored(t *testing.T) {
	m := newTestMachine(t, testPassword, nil)
	if _, err := m.HandleChallenge(testChallenge); err != nil {
		t.Fatalf("HandleChallenge() error = %v", err)
	}
	m.HandleWriteSucceeded(protocol.OpAuthResponse)

	cmd, err := m.HandleChallenge(testChallenge)
	if !errors.Is(err, ErrAlreadyAuthenticated) {
		t.Errorf("HandleChallenge() error = %v, want ErrAlreadyAuthenticated", err)
	}
	if cmd != nil {
		t.Errorf("HandleChallenge() = %x, want nil", cmd)
	}
	if m.State() != Authenticated {
		t.Errorf("State() = %v, want %v", m.State(), Authenticated)
	}
}

func TestChallengeWithBadLengthLeavesState(t *testing.T) {
	m := newTestMachine(t, testPassword, nil)
	_, err := m.HandleChallenge([]byte{1, 2})
	if !errors.Is(err, protocol.ErrInvalidKeyLength) {
		t.Errorf("HandleChallenge() error = %v, want ErrInvalidKeyLength", err)
	}
	if m.State() != Unauthenticated {
		t.Errorf("State() = %v, want %v", m.State(), Unauthenticated)
	}
}

func TestPasswordBroadcastPersistsAndSetsBroadcastID(t *testing.T) {
	store := &memStore{}
	m := newTestMachine(t, nil, store)

	cmd, err := m.HandlePassword(testPassword)
	if err != nil {
		t.Fatalf("HandlePassword() error = %v", err)
	}
	if !bytes.Equal(cmd, []byte{0x21, 0x01, 0x02, 0x03, 0x04}) {
		t.Errorf("HandlePassword() = %x, want 2101020304", cmd)
	}
	if !m.HasPassword() {
		t.Error("HasPassword() = false after password broadcast")
	}
	if len(store.saved) != 1 || !bytes.Equal(store.saved[0], testPassword) {
		t.Errorf("store.saved = %x, want [%x]", store.saved, testPassword)
	}
	if m.State() != Unauthenticated {
		t.Errorf("State() = %v, want %v", m.State(), Unauthenticated)
	}

	// The acquired password answers the next challenge.
	if _, err := m.HandleChallenge(testChallenge); err != nil {
		t.Errorf("HandleChallenge() after pairing error = %v", err)
	}
}

func TestPasswordBroadcastSaveFailure(t *testing.T) {
	saveErr := errors.New("disk full")
	m := newTestMachine(t, nil, &memStore{saveErr: saveErr})

	cmd, err := m.HandlePassword(testPassword)
	if !errors.Is(err, saveErr) {
		t.Errorf("HandlePassword() error = %v, want %v", err, saveErr)
	}
	if cmd == nil {
		t.Error("HandlePassword() returned no command on save failure")
	}
	if !m.HasPassword() {
		t.Error("password should stay active after a save failure")
	}
}

func TestPasswordCopiedFromInput(t *testing.T) {
	m := newTestMachine(t, nil, nil)
	pw := []byte{1, 2, 3, 4}
	if _, err := m.HandlePassword(pw); err != nil {
		t.Fatalf("HandlePassword() error = %v", err)
	}
	pw[0] = 0xFF

	cmd, err := m.HandleChallenge([]byte{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("HandleChallenge() error = %v", err)
	}
	if cmd[1] != 0x01 {
		t.Errorf("response byte 1 = 0x%02x, want 0x01 (password aliased caller slice)", cmd[1])
	}
}

func TestWriteFailedKeepsState(t *testing.T) {
	m := newTestMachine(t, testPassword, nil)
	if _, err := m.HandleChallenge(testChallenge); err != nil {
		t.Fatalf("HandleChallenge() error = %v", err)
	}

	cause := errors.New("att error")
	err := m.HandleWriteFailed(protocol.OpAuthResponse, cause)
	if !errors.Is(err, cause) {
		t.Errorf("HandleWriteFailed() error = %v, want wrapping %v", err, cause)
	}
	if m.State() != AwaitingChallengeResponse {
		t.Errorf("State() = %v, want %v", m.State(), AwaitingChallengeResponse)
	}

	if err := m.HandleWriteFailed(protocol.OpDisconnect, cause); err != nil {
		t.Errorf("HandleWriteFailed(disconnect) = %v, want nil", err)
	}
}
