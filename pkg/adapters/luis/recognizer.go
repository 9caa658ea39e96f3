// Package luis implements ports.Recognizer against the LUIS v3 prediction API.
package luis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/go-resty/resty/v2"
)

// Config holds the LUIS application coordinates.
type Config struct {
	Endpoint        string        `yaml:"endpoint" validate:"required,url"`
	AppID           string        `yaml:"app_id" validate:"required"`
	SubscriptionKey string        `yaml:"key" validate:"required"`
	Slot            string        `yaml:"slot" default:"production"`
	Timeout         time.Duration `yaml:"timeout" default:"10s"`
}

type predictionResponse struct {
	Query      string `json:"query"`
	Prediction struct {
		TopIntent string `json:"topIntent"`
		Intents   map[string]struct {
			Score float64 `json:"score"`
		} `json:"intents"`
		Entities map[string]any `json:"entities"`
	} `json:"prediction"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Recognizer calls the LUIS prediction endpoint for every message.
type Recognizer struct {
	cfg    Config
	client *resty.Client
}

// New creates a recognizer with its own resty client.
func New(cfg Config) (*Recognizer, error) {
	if cfg.Endpoint == "" || cfg.AppID == "" || cfg.SubscriptionKey == "" {
		return nil, errors.New("luis: endpoint, app id and key are required")
	}
	if cfg.Slot == "" {
		cfg.Slot = "production"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(cfg.Timeout)

	return &Recognizer{cfg: cfg, client: client}, nil
}

// Recognize implements ports.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, activity *domain.Activity) (domain.RecognizerResult, error) {
	result := domain.RecognizerResult{Text: activity.Text}
	if strings.TrimSpace(activity.Text) == "" {
		return result, nil
	}

	var body predictionResponse
	var apiErr errorResponse

	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"appId": r.cfg.AppID,
			"slot":  r.cfg.Slot,
		}).
		SetQueryParams(map[string]string{
			"subscription-key": r.cfg.SubscriptionKey,
			"query":            activity.Text,
			"verbose":          "false",
			"show-all-intents": "true",
		}).
		SetResult(&body).
		SetError(&apiErr).
		Get("/luis/prediction/v3.0/apps/{appId}/slots/{slot}/predict")
	if err != nil {
		return result, fmt.Errorf("luis request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return result, fmt.Errorf("luis: %s: %s", resp.Status(), apiErr.Error.Message)
		}
		return result, fmt.Errorf("luis: %s", resp.Status())
	}

	result.Intents = make(map[string]float64, len(body.Prediction.Intents))
	for name, intent := range body.Prediction.Intents {
		result.Intents[name] = intent.Score
	}

	result.Entities = make(map[string][]any, len(body.Prediction.Entities))
	for name, raw := range body.Prediction.Entities {
		if strings.HasPrefix(name, "$") {
			continue
		}
		switch v := raw.(type) {
		case []any:
			result.Entities[name] = flatten(v)
		default:
			result.Entities[name] = []any{v}
		}
	}
	return result, nil
}

// flatten lifts list entity matches, which LUIS nests one array deeper
// than other entity kinds.
func flatten(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if inner, ok := v.([]any); ok {
			out = append(out, inner...)
			continue
		}
		out = append(out, v)
	}
	return out
}
