package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/ddialog/pkg/domain"
)

// JSONHandler implements IOHandler for JSON-Lines communication.
//
// Each input line is either a JSON object {"text": ..., "value": ...}, a
// JSON string, or raw text. Each action is written as one JSON object.
type JSONHandler struct {
	Reader  *bufio.Reader
	Encoder *json.Encoder

	mu sync.Mutex
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) encode(v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Encoder.Encode(v)
}

func (h *JSONHandler) SendText(_ context.Context, text string) error {
	return h.encode(domain.SendText(text))
}

func (h *JSONHandler) SendStructured(_ context.Context, payload any) error {
	return h.encode(domain.SendStructured(payload))
}

func (h *JSONHandler) SystemOutput(_ context.Context, msg string) error {
	return h.encode(map[string]string{"type": "system", "text": msg})
}

type jsonInput struct {
	Text  string `json:"text"`
	Value any    `json:"value"`
}

// Input reads one line. Blank lines are skipped.
func (h *JSONHandler) Input(ctx context.Context) (Input, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Input{}, err
		}

		line, err := h.Reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			if err != nil {
				return Input{}, err
			}
			continue
		}

		clean, serr := SanitizeInput(line)
		if serr != nil {
			return Input{}, fmt.Errorf("invalid input: %w", serr)
		}
		return parseJSONLine(clean), nil
	}
}

func parseJSONLine(line string) Input {
	var s string
	if err := json.Unmarshal([]byte(line), &s); err == nil {
		return Input{Text: s}
	}

	var in jsonInput
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	if strings.HasPrefix(line, "{") && dec.Decode(&in) == nil {
		return Input{Text: in.Text, Value: in.Value}
	}
	return Input{Text: line}
}
