// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package ad4826

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client performs request/response exchanges with one instrument over a
// Transporter. Calls on one Client are serialised; the transporter's
// lifecycle belongs to whoever created it, except that Close closes it.
type Client struct {
	transporter Transporter
	packager    *AD4826Packager
	logger      *zap.Logger
	metrics     *Metrics
	mu          sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for exchange diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithDecodeMode selects how non-ASCII response bytes are decoded.
func WithDecodeMode(mode DecodeMode) Option {
	return func(c *Client) {
		c.packager.Mode = mode
	}
}

// NewClient creates a Client on top of t.
func NewClient(t Transporter, opts ...Option) *Client {
	c := &Client{
		transporter: t,
		packager:    NewAD4826Packager(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call sends one command and returns the decoded response. A NAK response is
// returned as a Response, not an error; interpreting it is up to the caller.
// Errors are ErrNoResponse, *MalformedResponseError, a pack error, or a
// transport error.
func (c *Client) Call(unit, channel Code, cmd string, text string) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	label := "invalid"
	if padded, err := PadCommandCode(cmd); err == nil {
		label = padded
	}
	log := c.logger.With(
		zap.String("exchange", uuid.NewString()[:8]),
		zap.String("cmd", label),
		zap.Stringer("unit", unit),
		zap.Stringer("channel", channel),
	)

	start := time.Now()
	resp, err := c.exchange(log, unit, channel, cmd, text)
	result := OutcomeOf(err).String()
	if err == nil && resp.IsNak() {
		result = OutcomeRejected.String()
	}
	c.metrics.observeExchange(commandLabel(label), result, time.Since(start))
	return resp, err
}

func (c *Client) exchange(log *zap.Logger, unit, channel Code, cmd string, text string) (*Response, error) {
	frame, err := c.packager.Pack(unit, channel, cmd, text)
	if err != nil {
		log.Error("failed to build command frame", zap.Error(err))
		return nil, err
	}
	log.Debug("send", zap.String("hex", formatPrintHEX(frame)))

	if err := c.transporter.WriteRaw(frame); err != nil {
		log.Error("write failed", zap.Error(err))
		return nil, err
	}

	raw, err := c.transporter.ReadUntil(Terminator)
	if errors.Is(err, ErrFrameTooLarge) {
		log.Warn("oversized response", zap.Int("received", len(raw)))
		return nil, &MalformedResponseError{Raw: raw, Err: err}
	}
	if err != nil {
		log.Error("read failed", zap.Error(err), zap.Int("received", len(raw)))
		return nil, err
	}
	if len(raw) == 0 {
		log.Warn("no response (timeout)")
		return nil, ErrNoResponse
	}
	log.Debug("receive", zap.String("hex", formatPrintHEX(raw)))

	resp, err := c.packager.Unpack(raw)
	if err != nil {
		log.Warn("parse error", zap.Error(err), zap.String("hex", formatPrintHEX(raw)))
		return nil, &MalformedResponseError{Raw: raw, Err: err}
	}

	sent := string(frame[offsetCommand:offsetPayload])
	if resp.Unit != unit.String() || resp.Channel != channel.String() || resp.Command != sent {
		log.Warn("response does not echo request",
			zap.String("resp_unit", resp.Unit),
			zap.String("resp_channel", resp.Channel),
			zap.String("resp_cmd", resp.Command))
	}
	if resp.IsNak() {
		log.Warn("command rejected", zap.String("error_code", resp.ErrorCode))
	} else {
		log.Debug("parsed", zap.Stringer("header", resp.Header), zap.String("text", resp.Text))
	}
	return resp, nil
}

// Close closes the underlying transporter.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transporter.Close()
}
