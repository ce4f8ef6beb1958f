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
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// WeightSample is one gross weight reading. Err is set when the read failed.
type WeightSample struct {
	Unit    Code
	Channel Code
	Weight  float64
	Err     error
	At      time.Time
}

// OnWeightFunc receives successful readings.
type OnWeightFunc func(WeightSample)

// OnErrorFunc receives failed readings.
type OnErrorFunc func(WeightSample)

// WeightPoller reads the gross weight of one unit/channel at a fixed rate and
// pushes the samples to callbacks.
type WeightPoller struct {
	api     BatchingApi
	unit    Code
	channel Code
	limiter *rate.Limiter
	onData  atomic.Value // holds OnWeightFunc
	onError atomic.Value // holds OnErrorFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWeightPoller creates a poller issuing at most one read per interval.
func NewWeightPoller(api BatchingApi, unit, channel Code, interval time.Duration) *WeightPoller {
	if interval <= 0 {
		interval = time.Second
	}
	return &WeightPoller{
		api:     api,
		unit:    unit,
		channel: channel,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// SetOnData sets the callback for successful readings.
func (p *WeightPoller) SetOnData(fn OnWeightFunc) {
	p.onData.Store(fn)
}

// SetOnError sets the callback for failed readings.
func (p *WeightPoller) SetOnError(fn OnErrorFunc) {
	p.onError.Store(fn)
}

// Poll performs one reading and dispatches it.
func (p *WeightPoller) Poll() WeightSample {
	w, err := p.api.ReadWeight(p.unit, p.channel)
	sample := WeightSample{Unit: p.unit, Channel: p.channel, Weight: w, Err: err, At: time.Now()}
	if err != nil {
		if cb, ok := p.onError.Load().(OnErrorFunc); ok && cb != nil {
			cb(sample)
		}
		return sample
	}
	if cb, ok := p.onData.Load().(OnWeightFunc); ok && cb != nil {
		cb(sample)
	}
	return sample
}

// Run polls until ctx is cancelled and returns ctx's error.
func (p *WeightPoller) Run(ctx context.Context) error {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			// Wait fails early when the next slot lies past ctx's deadline.
			<-ctx.Done()
			return ctx.Err()
		}
		p.Poll()
	}
}

// Start launches Run in a goroutine. Calling Start on a running poller is a
// no-op.
func (p *WeightPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = p.Run(ctx)
	}(p.done)
}

// Stop cancels a started poller and waits for the in-flight read to finish.
func (p *WeightPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
