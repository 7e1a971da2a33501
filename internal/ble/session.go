package ble

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chaz8081/bodyscale/internal/ble/auth"
	"github.com/chaz8081/bodyscale/internal/ble/protocol"
)

var (
	// ErrMissingCharacteristic is returned when the scale lacks a required
	// characteristic. It ends the session.
	ErrMissingCharacteristic = errors.New("ble: missing characteristic")
	// ErrDisconnected is returned from Run when the link drops.
	ErrDisconnected = errors.New("ble: scale disconnected")
)

// MeasurementSink receives every measurement decoded during a session.
type MeasurementSink interface {
	HandleMeasurement(m *protocol.Measurement) error
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Logger    *slog.Logger
	InboxSize int    // buffered events from transport callbacks (default 64)
	OnReady   func() // called each time all notifications become enabled
}

// Session drives one connection to the scale. Protocol state is only
// touched by Handle, which the Run loop calls for one event at a time;
// transport callbacks on other goroutines go through Post.
type Session struct {
	id      string
	conn    Connection
	auth    *auth.Machine
	tracker NotificationTracker
	sink    MeasurementSink
	log     *slog.Logger
	onReady func()

	chars   map[Role]Characteristic
	pending []Event
	inbox   chan Event
	done    chan struct{}
	closed  bool
}

// NewSession creates a session over an established connection. The
// session registers itself for the connection's disconnect callback.
func NewSession(conn Connection, machine *auth.Machine, sink MeasurementSink, opts SessionOptions) *Session {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	id := uuid.NewString()
	s := &Session{
		id:      id,
		conn:    conn,
		auth:    machine,
		sink:    sink,
		log:     opts.Logger.With("session", id),
		onReady: opts.OnReady,
		chars:   make(map[Role]Characteristic, len(allRoles)),
		inbox:   make(chan Event, opts.InboxSize),
		done:    make(chan struct{}),
	}
	conn.OnDisconnect(func() { s.Post(Disconnected{}) })
	return s
}

// ID returns the session identifier used in log records.
func (s *Session) ID() string { return s.id }

// AuthState returns the authentication state of the session.
func (s *Session) AuthState() auth.State { return s.auth.State() }

// Ready reports whether all notifications are currently enabled.
func (s *Session) Ready() bool { return s.tracker.AllEnabled() }

// Post queues an event for the Run loop. Safe for concurrent use. Events
// posted after Run has returned are dropped.
func (s *Session) Post(ev Event) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

// Run processes posted events until ctx is cancelled, the link drops or a
// fatal error occurs. On cancellation it shuts the session down.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("[BLE] session interrupted, disconnecting")
			return s.Shutdown()
		case ev := <-s.inbox:
			err := s.Handle(ev)
			if err == nil {
				continue
			}
			switch {
			case errors.Is(err, ErrDisconnected):
				s.closed = true
				return err
			case errors.Is(err, ErrMissingCharacteristic):
				s.log.Error("[BLE] scale is missing a required characteristic", "error", err)
				if serr := s.Shutdown(); serr != nil {
					return errors.Join(err, serr)
				}
				return err
			case errors.Is(err, auth.ErrAlreadyAuthenticated):
				s.log.Info("[BLE] ignoring challenge", "reason", err)
			default:
				s.log.Warn("[BLE] event failed", "error", err)
			}
		}
	}
}

// Handle processes ev and every follow-up event it produces (write and
// subscription results) before returning. The returned error joins all
// failures; none of them leave the session unusable except
// ErrMissingCharacteristic and ErrDisconnected.
func (s *Session) Handle(ev Event) error {
	var errs []error
	s.pending = append(s.pending, ev)
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		if err := s.dispatch(next); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) dispatch(ev Event) error {
	switch e := ev.(type) {
	case ServicesResolved:
		return s.resolve()
	case NotifyEnabled:
		s.log.Debug("[BLE] notifications enabled", "characteristic", e.Role)
		s.setNotify(e.Role, true)
		return nil
	case NotifyFailed:
		s.setNotify(e.Role, false)
		return fmt.Errorf("ble: enable notifications on %s: %w", e.Role, e.Err)
	case ValueUpdated:
		return s.handleValue(e.Role, e.Data)
	case WriteSucceeded:
		if cmd := s.auth.HandleWriteSucceeded(e.Opcode); cmd != nil {
			s.log.Info("[BLE] authenticated, syncing clock")
			return s.send(cmd)
		}
		return nil
	case WriteFailed:
		if err := s.auth.HandleWriteFailed(e.Opcode, e.Err); err != nil {
			return err
		}
		return fmt.Errorf("ble: %s write failed: %w", protocol.CommandName(e.Opcode), e.Err)
	case Disconnected:
		return ErrDisconnected
	default:
		return fmt.Errorf("ble: unknown event %T", ev)
	}
}

// resolve looks up the scale characteristics and subscribes to the
// notifying ones.
func (s *Session) resolve() error {
	for _, role := range allRoles {
		char, err := s.conn.DiscoverCharacteristic(ScaleServiceUUID, role.UUID())
		if err != nil {
			return fmt.Errorf("%w: %s (%s): %w", ErrMissingCharacteristic, role, role.UUID(), err)
		}
		s.chars[role] = char
	}

	for _, role := range notifyingRoles {
		err := s.chars[role].Subscribe(func(data []byte) {
			buf := make([]byte, len(data))
			copy(buf, data)
			s.Post(ValueUpdated{Role: role, Data: buf})
		})
		if err != nil {
			s.pending = append(s.pending, NotifyFailed{Role: role, Err: err})
			continue
		}
		s.pending = append(s.pending, NotifyEnabled{Role: role})
	}
	return nil
}

// setNotify updates the tracker and fires the ready hook on the edge where
// the last notification becomes enabled.
func (s *Session) setNotify(role Role, enabled bool) {
	before := s.tracker.AllEnabled()
	s.tracker.SetEnabled(role, enabled)
	after := s.tracker.AllEnabled()
	if after && !before {
		s.log.Info("[BLE] all notifications enabled")
		if s.onReady != nil {
			s.onReady()
		}
	}
}

func (s *Session) handleValue(role Role, data []byte) error {
	switch role {
	case RoleUploadCommand:
		return s.handleControl(data)
	case RoleMeasurement:
		s.log.Debug("[BLE] measurement frame", "data", hex.EncodeToString(data))
		m, err := protocol.DecodeMeasurement(data)
		if err != nil {
			return fmt.Errorf("ble: dropping measurement frame %x: %w", data, err)
		}
		if s.sink == nil {
			return nil
		}
		if err := s.sink.HandleMeasurement(m); err != nil {
			return fmt.Errorf("ble: measurement sink: %w", err)
		}
		return nil
	case RoleAppendMeasurement:
		// Payload format is not known.
		s.log.Info("[BLE] append measurement data", "data", hex.EncodeToString(data))
		return nil
	default:
		s.log.Warn("[BLE] value from unexpected characteristic", "characteristic", role, "data", hex.EncodeToString(data))
		return nil
	}
}

func (s *Session) handleControl(data []byte) error {
	frame, err := protocol.ClassifyControlFrame(data)
	if err != nil {
		return fmt.Errorf("ble: dropping control frame %x: %w", data, err)
	}

	switch frame.Kind {
	case protocol.ControlPasswordBroadcast:
		s.log.Info("[BLE] received password from scale in pairing mode")
		cmd, err := s.auth.HandlePassword(frame.Payload)
		if cmd != nil {
			if serr := s.send(cmd); serr != nil {
				return errors.Join(err, serr)
			}
		}
		return err
	case protocol.ControlChallengeRequest:
		s.log.Debug("[BLE] received challenge", "state", s.auth.State())
		cmd, err := s.auth.HandleChallenge(frame.Payload)
		if err != nil {
			return err
		}
		return s.send(cmd)
	default:
		s.log.Warn("[BLE] unrecognized control frame", "data", hex.EncodeToString(data))
		return nil
	}
}

// send writes a command to the download characteristic and queues the
// write result as an event.
func (s *Session) send(cmd []byte) error {
	char := s.chars[RoleDownloadCommand]
	if char == nil {
		return fmt.Errorf("ble: send %s: download characteristic not resolved", protocol.CommandName(cmd[0]))
	}
	s.log.Debug("[BLE] sending", "command", protocol.CommandName(cmd[0]), "data", hex.EncodeToString(cmd))
	if err := char.Write(cmd); err != nil {
		s.pending = append(s.pending, WriteFailed{Opcode: cmd[0], Err: err})
		return nil
	}
	s.pending = append(s.pending, WriteSucceeded{Opcode: cmd[0]})
	return nil
}

// Shutdown asks the scale to disconnect and closes the connection. It is
// safe to call more than once but not concurrently with Run, which calls
// it on cancellation.
func (s *Session) Shutdown() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if char := s.chars[RoleDownloadCommand]; char != nil {
		if err := char.Write(protocol.EncodeDisconnect()); err != nil {
			errs = append(errs, fmt.Errorf("ble: send disconnect: %w", err))
		}
	}
	if err := s.conn.Disconnect(); err != nil {
		errs = append(errs, fmt.Errorf("ble: disconnect: %w", err))
	}
	return errors.Join(errs...)
}
