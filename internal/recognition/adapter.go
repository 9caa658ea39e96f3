// Package recognition turns an inbound activity into a typed StepResult for
// the step currently being run.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/ports"
)

// Adapter runs the recognizer registered for a step's model and coerces the
// user's answer to the step's declared value type.
type Adapter struct {
	recognizers   map[string]ports.Recognizer
	defaultLocale string
	logger        *slog.Logger
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithRecognizer registers the recognizer used for steps whose model has
// the given name.
func WithRecognizer(model string, r ports.Recognizer) Option {
	return func(a *Adapter) {
		a.recognizers[model] = r
	}
}

// WithDefaultLocale sets the locale used when an activity carries none.
func WithDefaultLocale(locale string) Option {
	return func(a *Adapter) {
		a.defaultLocale = locale
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		recognizers:   make(map[string]ports.Recognizer),
		defaultLocale: "en-US",
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Recognizer returns the recognizer registered for model.
func (a *Adapter) Recognizer(model string) (ports.Recognizer, bool) {
	r, ok := a.recognizers[model]
	return r, ok
}

// Recognize classifies the activity for the given step. A failed coercion is
// reported through StepResult.Succeeded; only collaborator failures return
// an error.
func (a *Adapter) Recognize(ctx context.Context, activity *domain.Activity, step *domain.StepDefinition) (domain.StepResult, error) {
	result, _, err := a.RecognizeDetailed(ctx, activity, step)
	return result, err
}

// RecognizeDetailed is Recognize that also returns the raw recognizer output.
func (a *Adapter) RecognizeDetailed(ctx context.Context, activity *domain.Activity, step *domain.StepDefinition) (domain.StepResult, domain.RecognizerResult, error) {
	result := domain.StepResult{
		StepName: step.Name,
		Intent:   domain.IntentNone,
		Type:     step.Type,
	}

	rr := domain.RecognizerResult{Text: activity.Text}
	if r, ok := a.recognizers[step.Model.Name]; ok && step.Model.Name != "" {
		var err error
		rr, err = r.Recognize(ctx, activity)
		if err != nil {
			return result, rr, &domain.RecognizerError{Model: step.Model.Name, Err: err}
		}
		result.Intent, result.Score = rr.TopIntent()
		result.Entities = rr.Entities
	} else if step.Model.Name != "" {
		a.logger.Debug("No recognizer registered for model", "model", step.Model.Name, "step", step.Name)
	}

	switch step.Type {
	case domain.ValueCard:
		a.recognizeCard(activity, step, &result)
	case domain.ValueInteger:
		a.recognizeInteger(activity, step, rr, &result)
	default:
		text := activity.Text
		if v, ok := matchingEntity(step, rr); ok {
			text = entityText(v)
		}
		if strings.TrimSpace(text) != "" {
			result.Value = text
			result.Succeeded = true
		}
	}

	return result, rr, nil
}

func (a *Adapter) recognizeInteger(activity *domain.Activity, step *domain.StepDefinition, rr domain.RecognizerResult, result *domain.StepResult) {
	locale := activity.Locale
	if locale == "" {
		locale = a.defaultLocale
	}

	text := activity.Text
	if v, ok := matchingEntity(step, rr); ok {
		switch n := v.(type) {
		case float64:
			result.Value = int64(math.Round(n))
			result.Succeeded = true
			return
		case int64:
			result.Value = n
			result.Succeeded = true
			return
		case int:
			result.Value = int64(n)
			result.Succeeded = true
			return
		default:
			text = entityText(v)
		}
	}

	if n, ok := ParseInteger(text, locale); ok {
		result.Value = n
		result.Succeeded = true
	}
}

func (a *Adapter) recognizeCard(activity *domain.Activity, step *domain.StepDefinition, result *domain.StepResult) {
	if !activity.HasPayload() {
		return
	}

	container, err := parsePayload(activity.Value)
	if err != nil {
		a.logger.Debug("Card payload is not JSON", "step", step.Name, "err", err)
		return
	}

	if len(step.Model.MatchingEntities) == 0 {
		result.Value = domain.NormalizeValue(container.Data())
		result.Succeeded = true
		return
	}

	fields := make(map[string]any, len(step.Model.MatchingEntities))
	for _, path := range step.Model.MatchingEntities {
		if !container.ExistsP(path) {
			continue
		}
		fields[path] = domain.NormalizeValue(container.Path(path).Data())
	}
	if len(fields) == 0 {
		return
	}
	result.Value = fields
	result.Succeeded = true
}

// matchingEntity returns the first value of the first configured matching
// entity present in the recognizer output.
func matchingEntity(step *domain.StepDefinition, rr domain.RecognizerResult) (any, bool) {
	for _, name := range step.Model.MatchingEntities {
		if values := rr.Entities[name]; len(values) > 0 && values[0] != nil {
			return values[0], true
		}
	}
	return nil, false
}

// entityText flattens the shapes recognizers use for entity values: list
// entities nest their matches in arrays, prebuilt ones wrap them in objects.
func entityText(v any) string {
	switch e := v.(type) {
	case string:
		return e
	case []any:
		if len(e) > 0 {
			return entityText(e[0])
		}
		return ""
	case map[string]any:
		for _, key := range []string{"text", "value"} {
			if inner, ok := e[key]; ok {
				return entityText(inner)
			}
		}
	}
	return fmt.Sprint(v)
}

func parsePayload(v any) (*gabs.Container, error) {
	var raw []byte
	switch p := v.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case string:
		raw = []byte(p)
	default:
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return nil, err
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return gabs.ParseJSONDecoder(dec)
}
