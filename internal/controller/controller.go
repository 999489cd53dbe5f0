// Package controller turns submitted vouchers into passes.
//
// The PaymentController accepts voucher numbers that are already durable in
// the ledger and redeems them in the background:
//
//  1. Redeem enqueues the number and returns immediately.
//  2. Run takes numbers off the queue, fetches or generates the voucher's
//     stable set of random tokens, and hands both to a Redeemer.
//  3. On success the passes are stored and the voucher is marked redeemed.
//     Transient failures are retried after a delay; permanent failures are
//     logged and dropped.
//
// Resume enqueues every voucher the ledger still holds as unredeemed, so a
// voucher accepted before a restart is redeemed at least once. Both the
// ledger writes and the redemption trigger are idempotent, so duplicate
// triggers are harmless.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/zkapauthz/internal/voucher"
)

// DefaultTokenCount is the number of random tokens generated per voucher.
const DefaultTokenCount = 100

// DefaultRetryDelay is the wait before retrying a transient failure.
const DefaultRetryDelay = 5 * time.Second

// Ledger is the persistence the controller needs.
type Ledger interface {
	AddTokens(ctx context.Context, number string, tokens []voucher.RandomToken) ([]voucher.RandomToken, error)
	InsertPassesForVoucher(ctx context.Context, number string, passes []voucher.Pass) error
	Unredeemed(ctx context.Context) ([]string, error)
}

// PaymentController coordinates redemption of vouchers.
type PaymentController struct {
	ledger     Ledger
	redeemer   Redeemer
	logger     *slog.Logger
	metrics    *Metrics
	retryDelay time.Duration
	tokenCount int

	queue *redemptionQueue

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// Option configures a PaymentController.
type Option func(*PaymentController)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *PaymentController) { c.logger = logger }
}

// WithMetrics sets the metrics sink. Defaults to none.
func WithMetrics(m *Metrics) Option {
	return func(c *PaymentController) { c.metrics = m }
}

// WithRetryDelay sets the wait before retrying a transient failure.
func WithRetryDelay(d time.Duration) Option {
	return func(c *PaymentController) { c.retryDelay = d }
}

// WithTokenCount sets the number of random tokens generated per voucher.
func WithTokenCount(n int) Option {
	return func(c *PaymentController) { c.tokenCount = n }
}

// New creates a PaymentController. It does nothing until Run is called.
func New(ledger Ledger, redeemer Redeemer, opts ...Option) *PaymentController {
	c := &PaymentController{
		ledger:     ledger,
		redeemer:   redeemer,
		logger:     slog.Default(),
		retryDelay: DefaultRetryDelay,
		tokenCount: DefaultTokenCount,
		queue:      newRedemptionQueue(),
		inFlight:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Redeem schedules redemption of a voucher already recorded in the ledger.
// It never waits for redemption to happen.
func (c *PaymentController) Redeem(number string) error {
	if !c.queue.Enqueue(number) {
		return ErrQueueClosed
	}
	c.metrics.IncrementSubmitted()
	c.metrics.SetQueued(c.queue.Len())
	c.logger.Debug("voucher queued for redemption", "voucher", number)
	return nil
}

// Resume schedules redemption of every unredeemed voucher in the ledger and
// returns how many were scheduled.
func (c *PaymentController) Resume(ctx context.Context) (int, error) {
	numbers, err := c.ledger.Unredeemed(ctx)
	if err != nil {
		return 0, fmt.Errorf("resume redemption: %w", err)
	}
	for _, number := range numbers {
		if err := c.Redeem(number); err != nil {
			return 0, fmt.Errorf("resume redemption: %w", err)
		}
	}
	if len(numbers) > 0 {
		c.logger.Info("resumed redemption", "vouchers", len(numbers))
	}
	return len(numbers), nil
}

// Pending returns the number of vouchers waiting in the queue.
func (c *PaymentController) Pending() int {
	return c.queue.Len()
}

// Run processes the queue until ctx is cancelled or Stop is called. Each
// voucher is redeemed in its own goroutine; Run waits for them before
// returning.
func (c *PaymentController) Run(ctx context.Context) error {
	c.logger.Info("payment controller starting")
	defer c.wg.Wait()

	for {
		number, ok := c.queue.TryDequeue()
		if ok {
			c.metrics.SetQueued(c.queue.Len())
			c.dispatch(ctx, number)
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Info("payment controller stopping: context cancelled")
			c.queue.Close()
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel closes when the queue is closed.
			if c.queue.Closed() && c.queue.Len() == 0 {
				c.logger.Info("payment controller stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once the queue is drained and the
// attempts already started have finished; cancel Run's context to abandon
// them.
func (c *PaymentController) Stop() {
	c.queue.Close()
}

// dispatch starts a redemption attempt unless one for the same voucher is
// already running.
func (c *PaymentController) dispatch(ctx context.Context, number string) {
	c.mu.Lock()
	if c.inFlight[number] {
		c.mu.Unlock()
		c.logger.Debug("redemption already in progress", "voucher", number)
		return
	}
	c.inFlight[number] = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		err := c.attempt(ctx, number)

		c.mu.Lock()
		delete(c.inFlight, number)
		c.mu.Unlock()

		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if IsPermanent(err) {
			c.metrics.IncrementOutcome(OutcomePermanent)
			c.logger.Error("redemption failed permanently", "voucher", number, "error", err)
			return
		}

		c.metrics.IncrementOutcome(OutcomeTransient)
		c.logger.Warn("redemption failed, will retry", "voucher", number, "delay", c.retryDelay, "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(c.retryDelay):
			if !c.queue.Enqueue(number) {
				c.logger.Warn("redemption retry dropped: queue closed", "voucher", number)
			}
		}
	}()
}

// attempt performs one redemption of number.
func (c *PaymentController) attempt(ctx context.Context, number string) error {
	// Tokens are persisted before the redeemer sees them. If redemption
	// succeeds remotely but the result is lost, a retry resubmits the same
	// tokens and cannot be issued more passes than the first attempt.
	tokens, err := c.ledger.AddTokens(ctx, number, c.redeemer.RandomTokensForVoucher(number, c.tokenCount))
	if err != nil {
		return fmt.Errorf("prepare tokens: %w", err)
	}

	start := time.Now()
	passes, err := c.redeemer.Redeem(ctx, number, tokens)
	c.metrics.ObserveRedeemLatency(time.Since(start))
	if err != nil {
		return err
	}

	if err := c.ledger.InsertPassesForVoucher(ctx, number, passes); err != nil {
		return fmt.Errorf("store passes: %w", err)
	}

	c.metrics.IncrementOutcome(OutcomeRedeemed)
	c.logger.Info("voucher redeemed", "voucher", number, "passes", len(passes))
	return nil
}
