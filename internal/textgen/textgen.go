// Package textgen talks to the external generative model.
//
// Callers never see a panic or a raw transport error: every failure comes
// back as an *Error whose Kind is one of the sentinel errors below, so the
// turn pipeline can pick a fallback with errors.Is.
package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnavailable   = errors.New("text generation unavailable")
	ErrTimeout       = errors.New("text generation timed out")
	ErrMalformedJSON = errors.New("malformed JSON in response")
	ErrEmptyResponse = errors.New("empty response")
)

// Task tags route a request to a generation profile.
const (
	TaskPlanner   = "planner"
	TaskStory     = "story"
	TaskCombat    = "combat"
	TaskGenerator = "generator"
	TaskSummary   = "summary"
)

// Error is the structured failure returned by a Client.
type Error struct {
	Task string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("textgen %s: %v", e.Task, e.Kind)
	}
	return fmt.Sprintf("textgen %s: %v: %v", e.Task, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(task string, kind, err error) *Error {
	return &Error{Task: task, Kind: kind, Err: err}
}

// Client generates text for a prompt.
type Client interface {
	GenerateText(ctx context.Context, prompt, task string) (string, error)
	GenerateJSON(ctx context.Context, prompt, task string, out any) error
}

// ExtractJSON strips code fences and surrounding prose from a model reply and
// returns the JSON body.
func ExtractJSON(text string) (string, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```JSON")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return "", ErrEmptyResponse
	}
	if clean[0] != '{' && clean[0] != '[' {
		start := strings.IndexAny(clean, "{[")
		if start < 0 {
			return "", fmt.Errorf("%w: no JSON object in %q", ErrMalformedJSON, truncate(clean, 80))
		}
		closer := "}"
		if clean[start] == '[' {
			closer = "]"
		}
		end := strings.LastIndex(clean, closer)
		if end < start {
			return "", fmt.Errorf("%w: unterminated JSON in %q", ErrMalformedJSON, truncate(clean, 80))
		}
		clean = clean[start : end+1]
	}
	if !json.Valid([]byte(clean)) {
		return "", fmt.Errorf("%w: %q", ErrMalformedJSON, truncate(clean, 80))
	}
	return clean, nil
}

// DecodeJSON extracts and unmarshals a model reply into out.
func DecodeJSON(task, text string, out any) error {
	body, err := ExtractJSON(text)
	if err != nil {
		if errors.Is(err, ErrEmptyResponse) {
			return newError(task, ErrEmptyResponse, nil)
		}
		return newError(task, ErrMalformedJSON, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return newError(task, ErrMalformedJSON, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
