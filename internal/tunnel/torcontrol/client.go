// Package torcontrol drives a Tor daemon through its control port.
package torcontrol

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"time"

	"onionctl/internal/bridges"
	"onionctl/internal/config"
	"onionctl/internal/transport"
	"onionctl/internal/tunnel"
	"onionctl/pkg/logging"

	"github.com/cretz/bine/control"
)

const defaultPollInterval = 500 * time.Millisecond

// Unknown circuit; the circuit went away between list and close.
const statusUnknownCircuit = 552

// Options configures a Client.
type Options struct {
	Address          string
	CookiePath       string
	Password         string
	Timeout          time.Duration
	BootstrapTimeout time.Duration
	PollInterval     time.Duration
}

// OptionsFromConfig maps the control section of the configuration.
func OptionsFromConfig(c config.ControlConfig) Options {
	return Options{
		Address:          c.Address,
		CookiePath:       c.CookiePath,
		Password:         c.Password,
		Timeout:          c.Timeout,
		BootstrapTimeout: c.BootstrapTimeout,
	}
}

// Client implements tunnel.Control against a Tor control port. The connection is opened
// lazily and re-opened after I/O failures. Commands are serialised.
type Client struct {
	opts    Options
	catalog *transport.Catalog
	dial    func(ctx context.Context, network, address string) (net.Conn, error)

	mu   sync.Mutex
	raw  net.Conn
	conn *control.Conn
}

// New creates a client; nothing is dialled until the first call.
func New(opts Options, catalog *transport.Catalog) *Client {
	if opts.Address == "" {
		opts.Address = config.DefaultControlAddress
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultControlTimeout
	}
	if opts.BootstrapTimeout <= 0 {
		opts.BootstrapTimeout = config.DefaultBootstrapTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if catalog == nil {
		catalog = transport.DefaultCatalog()
	}
	d := &net.Dialer{}
	return &Client{opts: opts, catalog: catalog, dial: d.DialContext}
}

// Start configures bridges, enables the network and waits for bootstrap to finish.
func (c *Client) Start(ctx context.Context, cfg bridges.BridgeConfig, progress func(int)) error {
	conf, err := c.bridgeConf(cfg)
	if err != nil {
		return err
	}
	err = c.do(ctx, func(conn *control.Conn) error { return conn.SetConf(conf...) })
	if err != nil {
		return fmt.Errorf("failed to apply bridge configuration: %w", err)
	}
	err = c.do(ctx, func(conn *control.Conn) error {
		return conn.SetConf(control.NewKeyVal("DisableNetwork", "0"))
	})
	if err != nil {
		return fmt.Errorf("failed to enable network: %w", err)
	}
	logging.Info("TorControl", "Network enabled with transport %s, waiting for bootstrap", cfg.ActiveTransport)
	return c.waitBootstrap(ctx, progress)
}

// Stop disables the network. Tor keeps running but drops its circuits.
func (c *Client) Stop(ctx context.Context) error {
	err := c.do(ctx, func(conn *control.Conn) error {
		return conn.SetConf(control.NewKeyVal("DisableNetwork", "1"))
	})
	if err != nil {
		return fmt.Errorf("failed to disable network: %w", err)
	}
	return nil
}

// ListCircuits returns the circuits reported by GETINFO circuit-status.
func (c *Client) ListCircuits(ctx context.Context) ([]tunnel.CircuitDescriptor, error) {
	body, err := c.getInfo(ctx, "circuit-status")
	if err != nil {
		return nil, fmt.Errorf("failed to list circuits: %w", err)
	}
	return parseCircuitStatus(body), nil
}

// CloseCircuits closes each circuit. Circuits that already disappeared are ignored.
func (c *Client) CloseCircuits(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		err := c.do(ctx, func(conn *control.Conn) error { return conn.CloseCircuit(id, nil) })
		if replyCode(err) == statusUnknownCircuit {
			logging.Debug("TorControl", "Circuit %s already closed", id)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("circuit %s: %w", id, err))
			if ctx.Err() != nil {
				break
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close circuits: %w", errors.Join(errs...))
	}
	return nil
}

// Close drops the control connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetLocked()
}

func (c *Client) bridgeConf(cfg bridges.BridgeConfig) ([]*control.KeyVal, error) {
	if cfg.ActiveTransport == bridges.TransportNone || cfg.ActiveTransport == "" {
		return []*control.KeyVal{control.NewKeyVal("UseBridges", "0")}, nil
	}
	lines := c.catalog.BridgeLines(cfg)
	if len(lines) == 0 {
		return nil, fmt.Errorf("no bridges configured for %s", cfg.ActiveTransport)
	}

	conf := []*control.KeyVal{control.NewKeyVal("UseBridges", "1")}
	for _, l := range lines {
		conf = append(conf, control.NewKeyVal("Bridge", l))
	}
	for _, p := range c.pluginLines(cfg, lines) {
		conf = append(conf, control.NewKeyVal("ClientTransportPlugin", p))
	}
	return conf, nil
}

// pluginLines picks the transport plugins the bridge lines need. A custom line names its
// transport in the first field unless it starts with an address.
func (c *Client) pluginLines(cfg bridges.BridgeConfig, lines []string) []string {
	kinds := []bridges.TransportKind{cfg.ActiveTransport}
	if cfg.ActiveTransport == bridges.TransportCustom {
		kinds = nil
		seen := map[bridges.TransportKind]bool{}
		for _, l := range lines {
			kind := bridges.TransportKind(strings.ToLower(strings.Fields(l)[0]))
			if !seen[kind] && c.catalog.Has(kind) {
				seen[kind] = true
				kinds = append(kinds, kind)
			}
		}
	}
	var out []string
	for _, k := range kinds {
		if p := c.catalog.PluginLine(k); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Client) waitBootstrap(ctx context.Context, progress func(int)) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.BootstrapTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	last := -1
	for {
		value, err := c.getInfo(ctx, "status/bootstrap-phase")
		if err != nil {
			return fmt.Errorf("failed to read bootstrap status: %w", err)
		}
		p, err := parseBootstrapProgress(value)
		if err != nil {
			return err
		}
		if p != last {
			last = p
			logging.Debug("TorControl", "Bootstrap %d%%", p)
			if progress != nil {
				progress(p)
			}
		}
		if p >= 100 {
			return nil
		}
		if w := bootstrapWarning(value); w != "" {
			logging.Warn("TorControl", "Bootstrap stalled at %d%%: %s", p, w)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("bootstrap did not finish within %s (stuck at %d%%)", c.opts.BootstrapTimeout, last)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// getInfo returns the value of a single GETINFO key. A reply without the key is an error.
func (c *Client) getInfo(ctx context.Context, key string) (string, error) {
	var kvs []*control.KeyVal
	err := c.do(ctx, func(conn *control.Conn) error {
		var err error
		kvs, err = conn.GetInfo(key)
		return err
	})
	if err != nil {
		return "", err
	}
	for _, kv := range kvs {
		if kv.Key == key {
			return strings.TrimLeft(kv.Val, "\r\n"), nil
		}
	}
	return "", fmt.Errorf("reply to GETINFO %s did not contain %s", key, key)
}

// do runs fn on the authenticated connection, bounded by the command timeout and ctx.
// Transport failures drop the connection; error replies keep it.
func (c *Client) do(ctx context.Context, fn func(conn *control.Conn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if c.conn == nil {
		if err := c.openLocked(ctx); err != nil {
			return err
		}
	}
	err := c.withDeadlineLocked(ctx, func() error { return fn(c.conn) })
	if err != nil && replyCode(err) == 0 {
		_ = c.resetLocked()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func (c *Client) withDeadlineLocked(ctx context.Context, fn func() error) error {
	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.raw.SetDeadline(deadline); err != nil {
		return err
	}
	raw := c.raw
	stop := context.AfterFunc(ctx, func() {
		_ = raw.SetDeadline(time.Now())
	})
	defer stop()
	return fn()
}

func (c *Client) openLocked(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	raw, err := c.dial(dctx, "tcp", c.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to reach control port %s: %w", c.opts.Address, err)
	}
	c.raw = raw
	c.conn = control.NewConn(textproto.NewConn(raw))

	if err := c.withDeadlineLocked(ctx, c.authenticateLocked); err != nil {
		_ = c.resetLocked()
		return fmt.Errorf("control port authentication failed: %w", err)
	}
	logging.Debug("TorControl", "Authenticated to %s", c.opts.Address)
	return nil
}

// authenticateLocked uses the configured cookie file when there is one and otherwise lets
// the control port advertise its methods (NULL, HASHEDPASSWORD, SAFECOOKIE).
func (c *Client) authenticateLocked() error {
	if c.opts.CookiePath != "" && c.opts.Password == "" {
		cookie, err := os.ReadFile(c.opts.CookiePath)
		if err != nil {
			return fmt.Errorf("failed to read control cookie: %w", err)
		}
		_, err = c.conn.SendRequest("AUTHENTICATE %v", hex.EncodeToString(cookie))
		return err
	}
	return c.conn.Authenticate(c.opts.Password)
}

func (c *Client) resetLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.raw = nil
	return err
}

// replyCode returns the status of an error reply from the control port, or 0.
func replyCode(err error) int {
	var terr *textproto.Error
	if errors.As(err, &terr) {
		return terr.Code
	}
	return 0
}

var _ tunnel.Control = (*Client)(nil)
