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
)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer

	inputChan chan inputResult
	startOnce sync.Once
	mu        sync.Mutex
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump reads lines in the background so Input can honor ctx cancellation.
func (h *TextHandler) pump() {
	defer close(h.inputChan)
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err != io.EOF {
				h.inputChan <- inputResult{err: err}
			}
			return
		}
	}
}

// SendText prints a prompt, rendered when a renderer is configured.
func (h *TextHandler) SendText(_ context.Context, text string) error {
	output := text
	if h.Renderer != nil {
		if rendered, err := h.Renderer(text); err == nil {
			output = rendered
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.Writer, strings.TrimSpace(output))
	return err
}

// SendStructured prints the payload as indented JSON.
func (h *TextHandler) SendStructured(_ context.Context, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = fmt.Fprintln(h.Writer, string(data))
	return err
}

// SystemOutput prints a bracketed status line.
func (h *TextHandler) SystemOutput(_ context.Context, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintf(h.Writer, "[System] %s\n", msg)
	return err
}

// Input prompts with "> " and returns the next sanitized line. Lines that
// hold a JSON object are returned as a structured Value.
func (h *TextHandler) Input(ctx context.Context) (Input, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return Input{}, ctx.Err()
		default:
			h.mu.Lock()
			fmt.Fprint(h.Writer, "> ")
			h.mu.Unlock()
		}

		select {
		case <-ctx.Done():
			return Input{}, ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return Input{}, io.EOF
			}
			if res.err != nil {
				return Input{}, res.err
			}

			clean, err := SanitizeInput(strings.TrimSpace(res.text))
			if err != nil {
				_ = h.SystemOutput(ctx, fmt.Sprintf("Error: %v. Please try again.", err))
				continue
			}
			return parseLine(clean), nil
		}
	}
}

func parseLine(line string) Input {
	if strings.HasPrefix(line, "{") {
		var value map[string]any
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&value); err == nil {
			return Input{Value: value}
		}
	}
	return Input{Text: line}
}
