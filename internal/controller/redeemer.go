package controller

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/zkapauthz/internal/voucher"
)

// Redeemer exchanges a voucher for passes.
type Redeemer interface {
	// RandomTokensForVoucher generates count tokens for use in redeeming
	// number. Tokens must be unique over the lifetime of the node and kept
	// secret.
	RandomTokensForVoucher(number string, count int) []voucher.RandomToken

	// Redeem exchanges number and its tokens for passes.
	//
	// Implementations need not be fault tolerant: an interrupted attempt is
	// retried by the caller with the same arguments. Failures should be
	// reported as *RedemptionError.
	Redeem(ctx context.Context, number string, tokens []voucher.RandomToken) ([]voucher.Pass, error)
}

// DummyRedeemer pretends to redeem vouchers. It makes up one meaningless pass
// per token and reports success immediately.
type DummyRedeemer struct{}

// RandomTokensForVoucher implements Redeemer with predictable tokens.
func (DummyRedeemer) RandomTokensForVoucher(number string, count int) []voucher.RandomToken {
	tokens := make([]voucher.RandomToken, count)
	for i := range tokens {
		tokens[i] = voucher.RandomToken{Text: fmt.Sprintf("%s-%d", number, i)}
	}
	return tokens
}

// Redeem implements Redeemer.
func (DummyRedeemer) Redeem(ctx context.Context, number string, tokens []voucher.RandomToken) ([]voucher.Pass, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	passes := make([]voucher.Pass, len(tokens))
	for i, t := range tokens {
		passes[i] = voucher.Pass{Text: "pass-" + t.Text}
	}
	return passes, nil
}

// NonRedeemer never redeems anything. Redeem blocks until ctx is done.
type NonRedeemer struct{}

// RandomTokensForVoucher implements Redeemer with random tokens.
func (NonRedeemer) RandomTokensForVoucher(_ string, count int) []voucher.RandomToken {
	tokens := make([]voucher.RandomToken, count)
	for i := range tokens {
		tokens[i] = voucher.RandomToken{Text: uuid.NewString()}
	}
	return tokens
}

// Redeem implements Redeemer.
func (NonRedeemer) Redeem(ctx context.Context, _ string, _ []voucher.RandomToken) ([]voucher.Pass, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// RedeemerByName returns the redeemer configured by name: "dummy" or "non".
func RedeemerByName(name string) (Redeemer, error) {
	switch name {
	case "dummy":
		return DummyRedeemer{}, nil
	case "non":
		return NonRedeemer{}, nil
	default:
		return nil, fmt.Errorf("unknown redeemer %q: must be one of [dummy non]", name)
	}
}
