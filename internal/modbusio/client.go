// Package modbusio is the access layer between the register map and the
// Modbus TCP wire. It owns the connection, batches reads, and applies the
// register codecs on both directions.
package modbusio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/mhartig/idmbridge/internal/registers"
)

var (
	// ErrTransport wraps connection and timeout failures after retries
	// are exhausted.
	ErrTransport = errors.New("modbus transport error")
	// ErrInvalidAccess is returned for writes to read-only registers,
	// before any network call.
	ErrInvalidAccess = errors.New("write to read-only register")
)

// Transport is the subset of the goburrow modbus client the access layer
// uses. Split out so tests can count calls.
type Transport interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

type Config struct {
	Addr    string
	UnitID  byte
	Timeout time.Duration

	// Retries is the number of reconnect attempts per transaction before
	// ErrTransport surfaces. Backoff between attempts is exponential,
	// capped at MaxBackoff.
	Retries    int
	MaxBackoff time.Duration

	// CoalesceGap is the largest address gap bridged by a single read.
	CoalesceGap uint16
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.CoalesceGap == 0 {
		c.CoalesceGap = 16
	}
}

// Client is a serialized Modbus TCP client for one device. All transactions
// (polls and command writes) take the same lock, so a write never races a
// poll on the connection.
type Client struct {
	cfg Config

	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	tr      Transport
}

func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{cfg: cfg}
}

// NewWithTransport bypasses connection handling. Tests only.
func NewWithTransport(tr Transport, cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{cfg: cfg, tr: tr}
}

// connect opens the TCP handler lazily. Callers hold c.mu.
func (c *Client) connect() error {
	if c.tr != nil {
		return nil
	}
	h := modbus.NewTCPClientHandler(c.cfg.Addr)
	h.Timeout = c.cfg.Timeout
	h.SlaveId = c.cfg.UnitID
	if err := h.Connect(); err != nil {
		return fmt.Errorf("%w: connect %s: %v", ErrTransport, c.cfg.Addr, err)
	}
	c.handler = h
	c.tr = modbus.NewClient(h)
	return nil
}

// drop closes the handler so the next transaction reconnects. Callers hold c.mu.
func (c *Client) drop() {
	if c.handler != nil {
		_ = c.handler.Close()
		c.handler = nil
		c.tr = nil
	}
}

// Close releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return nil
	}
	err := c.handler.Close()
	c.handler = nil
	c.tr = nil
	return err
}

// transact runs fn with a live transport, reconnecting with bounded backoff
// on failure. Callers hold c.mu.
func (c *Client) transact(ctx context.Context, fn func(Transport) error) error {
	var last error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := min(c.cfg.MaxBackoff, time.Duration(1<<(attempt-1))*250*time.Millisecond)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := c.connect(); err != nil {
			last = err
			continue
		}
		if err := fn(c.tr); err != nil {
			last = fmt.Errorf("%w: %v", ErrTransport, err)
			c.drop()
			continue
		}
		return nil
	}
	return last
}

// ReadBatch reads every descriptor, coalescing contiguous address runs into
// single input-register reads. A group failure does not abort groups already
// read: the returned Values holds everything that succeeded and the error
// reports what did not. The coordinator decides whether a partial result is
// acceptable.
func (c *Client) ReadBatch(ctx context.Context, descs []registers.Descriptor) (registers.Values, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := make(registers.Values, len(descs))
	var errs []error

	for _, g := range planGroups(descs, c.cfg.CoalesceGap) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var raw []byte
		err := c.transact(ctx, func(tr Transport) error {
			var err error
			raw, err = tr.ReadInputRegisters(g.start, g.count)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("read %d+%d: %w", g.start, g.count, err))
			continue
		}
		if len(raw) != int(g.count)*2 {
			errs = append(errs, fmt.Errorf("read %d+%d: %w: short response (%d bytes)", g.start, g.count, ErrTransport, len(raw)))
			continue
		}
		regs := make([]uint16, g.count)
		for i := range regs {
			regs[i] = binary.BigEndian.Uint16(raw[i*2:])
		}
		for _, d := range g.descs {
			off := d.Address - g.start
			v, err := registers.Decode(d, regs[off:off+d.Width()])
			if err != nil {
				errs = append(errs, err)
				continue
			}
			values[d.Quantity] = v
		}
	}
	return values, errors.Join(errs...)
}

// Write encodes and writes one register. The access check happens before
// any network activity.
func (c *Client) Write(ctx context.Context, d registers.Descriptor, v registers.Value) error {
	if d.Access != registers.ReadWrite {
		return fmt.Errorf("%w: %q", ErrInvalidAccess, d.Quantity)
	}
	regs, err := registers.Encode(d, v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transact(ctx, func(tr Transport) error {
		if len(regs) == 1 {
			_, err := tr.WriteSingleRegister(d.Address, regs[0])
			return err
		}
		buf := make([]byte, len(regs)*2)
		for i, r := range regs {
			binary.BigEndian.PutUint16(buf[i*2:], r)
		}
		_, err := tr.WriteMultipleRegisters(d.Address, uint16(len(regs)), buf)
		return err
	})
}
