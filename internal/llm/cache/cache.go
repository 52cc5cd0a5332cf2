// Package cache decorates a triage.Provider with an in-process LRU of
// completions keyed by prompt. Only successful, non-empty replies are cached,
// and callers evict replies they reject with Forget.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/intake/internal/triage"
)

// Provider serves repeated prompts from memory.
type Provider struct {
	next    triage.Provider
	entries *lru.Cache[string, triage.Completion]
	lookups *prometheus.CounterVec
}

// New wraps next with an LRU holding up to size completions. reg may be nil.
func New(next triage.Provider, size int, reg prometheus.Registerer) (*Provider, error) {
	entries, err := lru.New[string, triage.Completion](size)
	if err != nil {
		return nil, fmt.Errorf("new lru: %w", err)
	}

	p := &Provider{
		next:    next,
		entries: entries,
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_llm_cache_lookups_total",
			Help: "Completion cache lookups by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		if err := reg.Register(p.lookups); err != nil {
			return nil, fmt.Errorf("register cache metrics: %w", err)
		}
	}
	return p, nil
}

// Complete returns a cached completion for prompt or asks the wrapped provider.
func (p *Provider) Complete(ctx context.Context, prompt string) (*triage.Completion, error) {
	key := keyFor(prompt)
	if c, ok := p.entries.Get(key); ok {
		p.lookups.WithLabelValues("hit").Inc()
		return &c, nil
	}
	p.lookups.WithLabelValues("miss").Inc()

	c, err := p.next.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if c != nil && strings.TrimSpace(c.Text) != "" {
		p.entries.Add(key, *c)
	}
	return c, nil
}

// Forget evicts the completion cached for prompt, if any.
func (p *Provider) Forget(prompt string) {
	p.entries.Remove(keyFor(prompt))
}

// Len returns the number of cached completions.
func (p *Provider) Len() int { return p.entries.Len() }

// Purge drops every cached completion.
func (p *Provider) Purge() { p.entries.Purge() }

func keyFor(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
