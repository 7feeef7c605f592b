// Package moderation decides whether an inbound prompt may be forwarded to the conversation backend.
package moderation

import (
	"context"
)

// Verdict is the outcome of a moderation check: pass, or reject with a human readable reason.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Pass returns an accepting verdict.
func Pass() Verdict {
	return Verdict{Allowed: true}
}

// Reject returns a rejecting verdict carrying reason.
func Reject(reason string) Verdict {
	return Verdict{Allowed: false, Reason: reason}
}

// Gate checks a prompt. A non-nil error means the moderation backend itself failed;
// a rejected Verdict is an expected outcome, not an error.
type Gate interface {
	Check(ctx context.Context, prompt string) (Verdict, error)
}

// Disabled passes every prompt. Used when prompt moderation is turned off.
type Disabled struct{}

func (Disabled) Check(ctx context.Context, prompt string) (Verdict, error) {
	return Pass(), nil
}

// Chain runs gates in order; the first rejection or error wins.
type Chain []Gate

func (c Chain) Check(ctx context.Context, prompt string) (Verdict, error) {
	for _, gate := range c {
		if gate == nil {
			continue
		}
		verdict, err := gate.Check(ctx, prompt)
		if err != nil {
			return Verdict{}, err
		}
		if !verdict.Allowed {
			return verdict, nil
		}
	}
	return Pass(), nil
}

// Combine builds a Gate from the non-nil gates. No gates yields Disabled.
func Combine(gates ...Gate) Gate {
	var chain Chain
	for _, g := range gates {
		if g != nil {
			chain = append(chain, g)
		}
	}
	switch len(chain) {
	case 0:
		return Disabled{}
	case 1:
		return chain[0]
	default:
		return chain
	}
}
