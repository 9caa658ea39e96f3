package middleware

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/ports"
)

const masked = "***"

// ErrReadOnlyView is returned when saving through a masked view.
var ErrReadOnlyView = errors.New("masked progress view is read-only")

// Masker replaces collected values whose key (step name or nested card
// field) matches any of its patterns.
type Masker struct {
	patterns []*regexp.Regexp
}

// NewMasker compiles the patterns.
func NewMasker(patterns []string) (*Masker, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pii pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return &Masker{patterns: compiled}, nil
}

// Apply returns a masked copy of p. p itself is not modified.
func (m *Masker) Apply(p *domain.Progress) *domain.Progress {
	if p == nil {
		return nil
	}
	cloned := p.Clone()
	m.maskMap(cloned.Values)

	if pending := cloned.Pending; pending != nil {
		if m.matches(pending.StepName) {
			pending.Value = masked
		} else if sub, ok := pending.Value.(map[string]any); ok {
			m.maskMap(sub)
		}
	}
	return cloned
}

func (m *Masker) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func (m *Masker) maskMap(values map[string]any) {
	for k, v := range values {
		if m.matches(k) {
			values[k] = masked
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			m.maskMap(sub)
		}
	}
}

type piiMiddleware struct {
	next   ports.ProgressStore
	masker *Masker
}

// NewPIIMiddleware wraps a store in a read-only view for operators: Load
// returns masked progress and Save fails with ErrReadOnlyView. The engine
// must never resume from this view.
func NewPIIMiddleware(patterns []string) (Middleware, error) {
	masker, err := NewMasker(patterns)
	if err != nil {
		return nil, err
	}
	return func(next ports.ProgressStore) ports.ProgressStore {
		return &piiMiddleware{next: next, masker: masker}
	}, nil
}

func (m *piiMiddleware) Save(context.Context, string, *domain.Progress) error {
	return ErrReadOnlyView
}

func (m *piiMiddleware) Load(ctx context.Context, conversationID string) (*domain.Progress, error) {
	p, err := m.next.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return m.masker.Apply(p), nil
}

func (m *piiMiddleware) Delete(ctx context.Context, conversationID string) error {
	return m.next.Delete(ctx, conversationID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
