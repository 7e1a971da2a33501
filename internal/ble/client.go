package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/bodyscale/internal/ble/auth"
	"github.com/chaz8081/bodyscale/internal/ble/protocol"
)

// ClientOptions configures the scale client.
type ClientOptions struct {
	BroadcastID    protocol.BroadcastID
	ConnectTimeout time.Duration    // bound on establishing the link (default 30s)
	Logger         *slog.Logger     // default slog.Default()
	Now            func() time.Time // clock used for the set-UTC command
}

// DefaultClientOptions returns sensible defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		BroadcastID:    protocol.BroadcastID{0x01, 0x02, 0x03, 0x04},
		ConnectTimeout: 30 * time.Second,
	}
}

// Client connects to one scale and runs a Session on the link.
type Client struct {
	adapter Adapter
	address string
	store   auth.CredentialStore
	sink    MeasurementSink
	opts    ClientOptions
	log     *slog.Logger
}

// NewClient creates a client for the scale at address. Passwords are read
// from and saved to store; decoded measurements go to sink.
func NewClient(adapter Adapter, address string, store auth.CredentialStore, sink MeasurementSink, opts ClientOptions) (*Client, error) {
	if address == "" {
		return nil, errors.New("ble: device address must not be empty")
	}
	if store == nil {
		return nil, errors.New("ble: credential store must not be nil")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		adapter: adapter,
		address: address,
		store:   store,
		sink:    sink,
		opts:    opts,
		log:     opts.Logger,
	}, nil
}

// loadPassword reads the stored password. A broken store is reported and
// treated as "not paired" so the scale can be paired again.
func (c *Client) loadPassword() []byte {
	password, err := c.store.Load()
	if err != nil {
		c.log.Warn("[BLE] could not load password, treating scale as unpaired", "error", err)
		return nil
	}
	if password == nil {
		c.log.Warn("[BLE] no stored password; put the scale in pairing mode to retrieve it")
	}
	return password
}

// Run connects to the scale and processes its events until ctx is
// cancelled, the link drops or the session fails. Cancelling ctx sends the
// disconnect command and closes the link. There is no automatic reconnect.
func (c *Client) Run(ctx context.Context) error {
	machine, err := auth.NewMachine(c.loadPassword(), c.store, auth.Options{
		BroadcastID: c.opts.BroadcastID,
		Now:         c.opts.Now,
	})
	if err != nil {
		return fmt.Errorf("ble: %w", err)
	}

	session, err := c.Connect(ctx, machine)
	if err != nil {
		return err
	}
	return session.Run(ctx)
}

// Connect enables the adapter, connects to the scale and returns a session
// with discovery already queued.
func (c *Client) Connect(ctx context.Context, machine *auth.Machine) (*Session, error) {
	if err := c.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	c.log.Info("[BLE] connecting", "address", c.address)
	conn, err := c.adapter.Connect(connectCtx, c.address)
	if err != nil {
		return nil, fmt.Errorf("ble: connect to %s: %w", c.address, err)
	}

	session := NewSession(conn, machine, c.sink, SessionOptions{Logger: c.log.With("address", c.address)})
	session.Post(ServicesResolved{})
	c.log.Info("[BLE] connected", "address", c.address, "session", session.ID())
	return session, nil
}
