package ad4826

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBatching returns weights in order, then ErrNoResponse.
type fakeBatching struct {
	mu      sync.Mutex
	weights []float64
	reads   int
}

func (f *fakeBatching) ReadWeight(unit, channel Code) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.weights) == 0 {
		return 0, ErrNoResponse
	}
	w := f.weights[0]
	f.weights = f.weights[1:]
	return w, nil
}

func (f *fakeBatching) CutOutAmount(unit, channel Code, amount float64) error { return nil }
func (f *fakeBatching) DischargeAll(unit, channel Code) error                 { return nil }
func (f *fakeBatching) Call(unit, channel Code, cmd, text string) (*Response, error) {
	return nil, ErrNoResponse
}

func TestWeightPoller_Poll(t *testing.T) {
	api := &fakeBatching{weights: []float64{1.5}}
	p := NewWeightPoller(api, unit00, chan00, time.Millisecond)

	var got, failed []WeightSample
	p.SetOnData(func(s WeightSample) { got = append(got, s) })
	p.SetOnError(func(s WeightSample) { failed = append(failed, s) })

	s := p.Poll()
	require.NoError(t, s.Err)
	assert.Equal(t, 1.5, s.Weight)

	s = p.Poll()
	assert.ErrorIs(t, s.Err, ErrNoResponse)

	require.Len(t, got, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, unit00, got[0].Unit)
}

func TestWeightPoller_Run(t *testing.T) {
	api := &fakeBatching{weights: []float64{1, 2, 3}}
	p := NewWeightPoller(api, unit00, chan00, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	samples := make(chan WeightSample, 3)
	p.SetOnData(func(s WeightSample) {
		samples <- s
		if len(samples) == cap(samples) {
			cancel()
		}
	})

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	close(samples)
	var weights []float64
	for s := range samples {
		weights = append(weights, s.Weight)
	}
	assert.Equal(t, []float64{1, 2, 3}, weights)
}

func TestWeightPoller_StartStop(t *testing.T) {
	api := &fakeBatching{}
	p := NewWeightPoller(api, unit00, chan00, time.Millisecond)

	p.Start(context.Background())
	p.Start(context.Background())
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.reads >= 2
	}, time.Second, time.Millisecond)
	p.Stop()
	p.Stop()

	api.mu.Lock()
	reads := api.reads
	api.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, reads, api.reads)
}
