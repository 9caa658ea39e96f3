package memory

import (
	"context"
	"regexp"
	"strings"

	"github.com/aretw0/ddialog/pkg/domain"
)

// Recognizer is a deterministic keyword recognizer.
// It stands in for a hosted NLU service in tests and local development.
type Recognizer struct {
	intents  map[string][]string
	entities map[string]*regexp.Regexp
}

// RecognizerOption configures the Recognizer.
type RecognizerOption func(*Recognizer)

// WithIntent registers an intent matched when any keyword occurs as a word.
func WithIntent(name string, keywords ...string) RecognizerOption {
	return func(r *Recognizer) {
		for _, k := range keywords {
			r.intents[name] = append(r.intents[name], strings.ToLower(k))
		}
	}
}

// WithEntity registers an entity extracted by pattern. When the pattern has a
// capture group, the first group is used as the value.
func WithEntity(name string, pattern *regexp.Regexp) RecognizerOption {
	return func(r *Recognizer) {
		r.entities[name] = pattern
	}
}

// NewRecognizer creates a keyword recognizer.
func NewRecognizer(opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		intents:  make(map[string][]string),
		entities: make(map[string]*regexp.Regexp),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recognize scores each intent by the share of its keywords found in the text.
func (r *Recognizer) Recognize(ctx context.Context, activity *domain.Activity) (domain.RecognizerResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.RecognizerResult{}, err
	}

	result := domain.RecognizerResult{
		Text:     activity.Text,
		Intents:  make(map[string]float64),
		Entities: make(map[string][]any),
	}

	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(activity.Text), isSeparator) {
		words[w] = true
	}

	for intent, keywords := range r.intents {
		hits := 0
		for _, k := range keywords {
			if words[k] {
				hits++
			}
		}
		if hits > 0 {
			result.Intents[intent] = float64(hits) / float64(len(keywords))
		}
	}

	for name, pattern := range r.entities {
		for _, m := range pattern.FindAllStringSubmatch(activity.Text, -1) {
			value := m[0]
			if len(m) > 1 {
				value = m[1]
			}
			result.Entities[name] = append(result.Entities[name], value)
		}
	}

	return result, nil
}

func isSeparator(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'', r > 127:
		return false
	default:
		return true
	}
}
