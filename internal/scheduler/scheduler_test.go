package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BatmanBruc/dmg-bot/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedChecker struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(orderID string, call int) (Outcome, error)
}

func newChecker(fn func(orderID string, call int) (Outcome, error)) *scriptedChecker {
	return &scriptedChecker{calls: make(map[string]int), fn: fn}
}

func (c *scriptedChecker) CheckOrder(_ context.Context, _ types.AccountKey, orderID string) (Outcome, error) {
	c.mu.Lock()
	c.calls[orderID]++
	call := c.calls[orderID]
	c.mu.Unlock()
	return c.fn(orderID, call)
}

func (c *scriptedChecker) Calls(orderID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[orderID]
}

var testKey = types.NewAccountKey("120", "664")

func newTestPoller(t *testing.T, checker OrderChecker, maxChecks, maxNotFound int) *Poller {
	t.Helper()
	p := NewPoller(checker, Config{
		Interval:    2 * time.Millisecond,
		MaxChecks:   maxChecks,
		MaxNotFound: maxNotFound,
	}, zap.NewNop(), nil)
	t.Cleanup(p.Stop)
	return p
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session for %s did not finish", s.OrderID)
	}
}

func TestExpiresAfterExactlyMaxChecks(t *testing.T) {
	c := newChecker(func(string, int) (Outcome, error) { return OutcomePending, nil })
	p := newTestPoller(t, c, 5, 10)

	s := p.Start(testKey, "O1")
	waitDone(t, s)

	assert.Equal(t, StateExpired, s.State())
	assert.Equal(t, 5, c.Calls("O1"))
	assert.Equal(t, 5, s.Checks())

	_, active := p.Active(testKey)
	assert.False(t, active)
}

func TestCompletesOnCompletedOutcome(t *testing.T) {
	c := newChecker(func(_ string, call int) (Outcome, error) {
		if call == 3 {
			return OutcomeCompleted, nil
		}
		return OutcomePending, nil
	})
	p := newTestPoller(t, c, 100, 10)

	s := p.Start(testKey, "O1")
	waitDone(t, s)

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, 3, c.Calls("O1"))
}

func TestAlreadyCompletedStopsPolling(t *testing.T) {
	c := newChecker(func(string, int) (Outcome, error) { return OutcomeAlreadyCompleted, nil })
	p := newTestPoller(t, c, 100, 10)

	s := p.Start(testKey, "O1")
	waitDone(t, s)

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, 1, c.Calls("O1"))
}

func TestStaleRecordCancels(t *testing.T) {
	c := newChecker(func(string, int) (Outcome, error) { return OutcomeStale, nil })
	p := newTestPoller(t, c, 100, 10)

	s := p.Start(testKey, "O1")
	waitDone(t, s)
	assert.Equal(t, StateCancelled, s.State())
}

func TestConsecutiveNotFoundExpires(t *testing.T) {
	c := newChecker(func(string, int) (Outcome, error) {
		return "", &types.ProviderError{Op: "get order", StatusCode: 404, Err: errors.New("missing")}
	})
	p := newTestPoller(t, c, 100, 4)

	s := p.Start(testKey, "O1")
	waitDone(t, s)

	assert.Equal(t, StateExpired, s.State())
	assert.Equal(t, 4, c.Calls("O1"))
}

func TestNotFoundStreakResetsOnOtherResults(t *testing.T) {
	c := newChecker(func(_ string, call int) (Outcome, error) {
		switch {
		case call == 7:
			return OutcomeCompleted, nil
		case call%3 == 0:
			return OutcomePending, nil
		default:
			return "", types.ErrOrderNotFound
		}
	})
	p := newTestPoller(t, c, 100, 3)

	s := p.Start(testKey, "O1")
	waitDone(t, s)

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, 7, c.Calls("O1"))
}

func TestTransientErrorsAreSwallowed(t *testing.T) {
	c := newChecker(func(_ string, call int) (Outcome, error) {
		if call < 3 {
			return "", errors.New("timeout")
		}
		return OutcomeCompleted, nil
	})
	p := newTestPoller(t, c, 100, 1)

	s := p.Start(testKey, "O1")
	waitDone(t, s)
	assert.Equal(t, StateCompleted, s.State())
}

func TestStartSupersedesActiveSession(t *testing.T) {
	c := newChecker(func(orderID string, _ int) (Outcome, error) { return OutcomePending, nil })
	p := newTestPoller(t, c, 100000, 10)

	first := p.Start(testKey, "O1")
	second := p.Start(testKey, "O2")
	waitDone(t, first)

	assert.Equal(t, StateCancelled, first.State())
	assert.Equal(t, StateActive, second.State())

	active, ok := p.Active(testKey)
	require.True(t, ok)
	assert.Same(t, second, active)

	other := p.Start(types.NewAccountKey("120", "999"), "O3")
	assert.Equal(t, StateActive, other.State())
	assert.Equal(t, StateActive, second.State())
}

func TestCancelAndStop(t *testing.T) {
	c := newChecker(func(string, int) (Outcome, error) { return OutcomePending, nil })
	p := newTestPoller(t, c, 100000, 10)

	s := p.Start(testKey, "O1")
	require.True(t, p.Cancel(testKey))
	waitDone(t, s)
	assert.Equal(t, StateCancelled, s.State())
	assert.False(t, p.Cancel(types.NewAccountKey("1", "2")))

	s2 := p.Start(testKey, "O2")
	p.Stop()
	assert.Equal(t, StateCancelled, s2.State())

	late := p.Start(testKey, "O3")
	assert.Equal(t, StateCancelled, late.State())
}

func TestResumeUsesRemainingBudget(t *testing.T) {
	c := newChecker(func(string, int) (Outcome, error) { return OutcomePending, nil })
	p := NewPoller(c, Config{Interval: time.Minute, MaxChecks: 10, MaxNotFound: 10}, zap.NewNop(), nil)
	defer p.Stop()

	assert.Nil(t, p.Resume(testKey, "O1", time.Now().Add(-11*time.Minute)))

	s := p.Resume(testKey, "O2", time.Now().Add(-4*time.Minute))
	require.NotNil(t, s)
	assert.Equal(t, 6, s.maxChecks)
	assert.Equal(t, 10*time.Minute, p.Budget())
}
