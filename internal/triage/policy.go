package triage

import (
	"errors"
	"fmt"

	"github.com/linnemanlabs/intake/internal/classify"
	"github.com/linnemanlabs/intake/internal/taxonomy"
)

const (
	DefaultThreshold   = 0.85
	DefaultMaxAttempts = 3
)

// Decision is what the policy does with a validated classification.
type Decision string

const (
	DecisionReferral     Decision = "referral"
	DecisionAutoResponse Decision = "auto_response"
	DecisionClarify      Decision = "clarify"
	DecisionExhausted    Decision = "exhausted"
)

// Policy holds the confidence routing parameters.
type Policy struct {
	// Threshold is the minimum confidence for a Non-Medical auto-response.
	Threshold float64

	// MaxAttempts bounds clarification rounds per question.
	MaxAttempts int

	// RequireCertainty routes any result below 1.0 to the referral link.
	RequireCertainty bool

	// ReferralLink is where Medical and exhausted conversations are sent.
	ReferralLink string
}

// DefaultPolicy returns the standard routing parameters for link.
func DefaultPolicy(link string) Policy {
	return Policy{
		Threshold:    DefaultThreshold,
		MaxAttempts:  DefaultMaxAttempts,
		ReferralLink: link,
	}
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	var errs []error
	if !(p.Threshold > 0 && p.Threshold <= 1) {
		errs = append(errs, fmt.Errorf("threshold %v must be in (0, 1]", p.Threshold))
	}
	if p.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max attempts %d must not be negative", p.MaxAttempts))
	}
	if p.ReferralLink == "" {
		errs = append(errs, errors.New("referral link is required"))
	}
	return errors.Join(errs...)
}

// Decide routes a validated classification given the clarification rounds
// already used for the current question.
func (p Policy) Decide(r classify.Result, attemptsUsed int) Decision {
	if r.Category == taxonomy.Medical {
		return DecisionReferral
	}
	if r.Confidence >= p.Threshold {
		if p.RequireCertainty && r.Confidence < 1 {
			return DecisionReferral
		}
		return DecisionAutoResponse
	}
	if attemptsUsed < p.MaxAttempts {
		return DecisionClarify
	}
	return DecisionExhausted
}
