package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zkapauthz/internal/store"
	"github.com/roach88/zkapauthz/internal/testutil"
	"github.com/roach88/zkapauthz/internal/voucher"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenAndInitialize(context.Background(), filepath.Join(t.TempDir(), "test.db"), store.SchemaVersion, store.MemoryConnector)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// runController runs c in the background and stops it when the test ends.
func runController(t *testing.T, c *PaymentController) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("controller did not stop")
		}
	})
}

// scriptedRedeemer fails with the queued errors before delegating to
// DummyRedeemer, recording the tokens it was given on every call.
type scriptedRedeemer struct {
	DummyRedeemer

	mu       sync.Mutex
	failures []error
	calls    [][]voucher.RandomToken
}

func (r *scriptedRedeemer) RandomTokensForVoucher(number string, count int) []voucher.RandomToken {
	// Fresh random tokens each time, so reuse of stored tokens is visible.
	return NonRedeemer{}.RandomTokensForVoucher(number, count)
}

func (r *scriptedRedeemer) Redeem(ctx context.Context, number string, tokens []voucher.RandomToken) ([]voucher.Pass, error) {
	r.mu.Lock()
	r.calls = append(r.calls, tokens)
	var err error
	if len(r.failures) > 0 {
		err, r.failures = r.failures[0], r.failures[1:]
	}
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return r.DummyRedeemer.Redeem(ctx, number, tokens)
}

func (r *scriptedRedeemer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func redeemed(t *testing.T, s *store.Store, number string) func() bool {
	return func() bool {
		v, err := s.Get(context.Background(), number)
		return err == nil && v.Redeemed
	}
}

func TestController_DummyRedeemer(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	number := testutil.VoucherNumber(1)
	require.NoError(t, s.Add(ctx, number))

	c := New(s, DummyRedeemer{}, WithLogger(quietLogger), WithTokenCount(5))
	runController(t, c)

	require.NoError(t, c.Redeem(number))
	require.Eventually(t, redeemed(t, s, number), 2*time.Second, 10*time.Millisecond)

	n, err := s.CountPasses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	tokens, err := s.Tokens(ctx, number)
	require.NoError(t, err)
	assert.Equal(t, DummyRedeemer{}.RandomTokensForVoucher(number, 5), tokens)
}

func TestController_RedeemDoesNotWait(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	number := testutil.VoucherNumber(1)
	require.NoError(t, s.Add(ctx, number))

	c := New(s, NonRedeemer{}, WithLogger(quietLogger), WithTokenCount(3))
	runController(t, c)

	done := make(chan error, 1)
	go func() { done <- c.Redeem(number) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Redeem blocked")
	}

	// Tokens are persisted before the redeemer is called.
	require.Eventually(t, func() bool {
		tokens, err := s.Tokens(ctx, number)
		return err == nil && len(tokens) == 3
	}, 2*time.Second, 10*time.Millisecond)

	v, err := s.Get(ctx, number)
	require.NoError(t, err)
	assert.False(t, v.Redeemed)
}

func TestController_TransientFailureRetriesWithSameTokens(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	number := testutil.VoucherNumber(1)
	require.NoError(t, s.Add(ctx, number))

	r := &scriptedRedeemer{failures: []error{
		&RedemptionError{Voucher: number, Err: errors.New("issuer unavailable")},
		errors.New("connection reset"),
	}}
	c := New(s, r, WithLogger(quietLogger), WithRetryDelay(10*time.Millisecond), WithTokenCount(4))
	runController(t, c)

	require.NoError(t, c.Redeem(number))
	require.Eventually(t, redeemed(t, s, number), 2*time.Second, 10*time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.calls, 3)
	assert.Equal(t, r.calls[0], r.calls[1])
	assert.Equal(t, r.calls[0], r.calls[2])
}

func TestController_PermanentFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	number := testutil.VoucherNumber(1)
	require.NoError(t, s.Add(ctx, number))

	r := &scriptedRedeemer{failures: []error{
		&RedemptionError{Voucher: number, Permanent: true, Err: errors.New("double spend")},
	}}
	c := New(s, r, WithLogger(quietLogger), WithRetryDelay(10*time.Millisecond), WithTokenCount(1))
	runController(t, c)

	require.NoError(t, c.Redeem(number))
	require.Eventually(t, func() bool { return r.callCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, r.callCount())

	v, err := s.Get(ctx, number)
	require.NoError(t, err)
	assert.False(t, v.Redeemed)
}

func TestController_Resume(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	seq := testutil.NewVoucherSequence()
	a, b := seq.Next(), seq.Next()
	require.NoError(t, s.Add(ctx, a))
	require.NoError(t, s.Add(ctx, b))
	require.NoError(t, s.InsertPassesForVoucher(ctx, a, nil))

	c := New(s, DummyRedeemer{}, WithLogger(quietLogger), WithTokenCount(2))

	n, err := c.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, c.Pending())

	runController(t, c)
	require.Eventually(t, redeemed(t, s, b), 2*time.Second, 10*time.Millisecond)
}

func TestController_StopDrainsAndRejects(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	number := testutil.VoucherNumber(1)
	require.NoError(t, s.Add(ctx, number))

	c := New(s, DummyRedeemer{}, WithLogger(quietLogger), WithTokenCount(1))
	require.NoError(t, c.Redeem(number))
	c.Stop()

	assert.ErrorIs(t, c.Redeem(number), ErrQueueClosed)

	require.NoError(t, c.Run(ctx))
	v, err := s.Get(ctx, number)
	require.NoError(t, err)
	assert.True(t, v.Redeemed, "queued vouchers are processed before Run returns")
}

func TestController_RunReturnsOnCancel(t *testing.T) {
	s := createTestStore(t)
	c := New(s, NonRedeemer{}, WithLogger(quietLogger))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestController_Metrics(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	number := testutil.VoucherNumber(1)
	require.NoError(t, s.Add(ctx, number))

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := New(s, DummyRedeemer{}, WithLogger(quietLogger), WithMetrics(m), WithTokenCount(1))
	runController(t, c)

	require.NoError(t, c.Redeem(number))
	require.Eventually(t, redeemed(t, s, number), 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.Submitted))
	require.Eventually(t, func() bool {
		return promtest.ToFloat64(m.Outcomes.WithLabelValues(OutcomeRedeemed)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRedeemerByName(t *testing.T) {
	r, err := RedeemerByName("dummy")
	require.NoError(t, err)
	assert.IsType(t, DummyRedeemer{}, r)

	r, err = RedeemerByName("non")
	require.NoError(t, err)
	assert.IsType(t, NonRedeemer{}, r)

	_, err = RedeemerByName("real")
	assert.Error(t, err)
}

func TestNonRedeemer_TokensAreUnique(t *testing.T) {
	tokens := NonRedeemer{}.RandomTokensForVoucher("v", 50)
	seen := map[string]bool{}
	for _, tok := range tokens {
		seen[tok.Text] = true
	}
	assert.Len(t, seen, 50)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(&RedemptionError{Permanent: true, Err: io.EOF}))
	assert.False(t, IsPermanent(&RedemptionError{Err: io.EOF}))
	assert.False(t, IsPermanent(io.EOF))

	err := &RedemptionError{Voucher: "v", Err: io.EOF}
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "transient")
}
