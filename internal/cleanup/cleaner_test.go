package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePurger struct {
	mu    sync.Mutex
	calls []time.Duration
	err   error
}

func (p *fakePurger) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, olderThan)
	return 2, p.err
}

func (p *fakePurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestCleanerDisabledWithoutRetention(t *testing.T) {
	p := &fakePurger{}
	c := NewCleaner(p, time.Millisecond, 0)
	assert.False(t, c.Enabled())

	c.Start(context.Background())
	c.Wait()
	assert.Zero(t, p.count())
}

func TestCleanerPurgesOnStartAndTick(t *testing.T) {
	p := &fakePurger{}
	c := NewCleaner(p, 10*time.Millisecond, 24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	assert.Eventually(t, func() bool { return p.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	c.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.calls {
		assert.Equal(t, 24*time.Hour, d)
	}
}

func TestCleanerSurvivesPurgeErrors(t *testing.T) {
	p := &fakePurger{err: errors.New("store down")}
	c := NewCleaner(p, 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	assert.Eventually(t, func() bool { return p.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	c.Wait()
}

func TestNewCleanerDefaultsInterval(t *testing.T) {
	c := NewCleaner(&fakePurger{}, 0, time.Hour)
	assert.Equal(t, time.Hour, c.interval)
}
