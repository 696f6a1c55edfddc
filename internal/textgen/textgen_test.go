package textgen

import (
	"context"
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"intent\": \"attack\"}\n```":       `{"intent": "attack"}`,
		"```\n{\"a\": 1}\n```":                         `{"a": 1}`,
		"Here you go: {\"a\": [1, 2]} hope it helps":   `{"a": [1, 2]}`,
		"  [1, 2, 3]  ":                                `[1, 2, 3]`,
	}
	for in, want := range cases {
		got, err := ExtractJSON(in)
		if err != nil {
			t.Errorf("ExtractJSON(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ExtractJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractJSONRejectsMalformed(t *testing.T) {
	for _, in := range []string{"no json here", "{\"a\": ", "```json\n{broken}\n```"} {
		if _, err := ExtractJSON(in); !errors.Is(err, ErrMalformedJSON) {
			t.Errorf("ExtractJSON(%q) = %v, want ErrMalformedJSON", in, err)
		}
	}
	if _, err := ExtractJSON("   "); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse for blank reply, got %v", err)
	}
}

func TestFakeReturnsStructuredErrors(t *testing.T) {
	f := Offline()
	_, err := f.GenerateText(context.Background(), "hello", TaskStory)
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if te.Task != TaskStory || !errors.Is(err, ErrUnavailable) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeGenerateJSON(t *testing.T) {
	f := &Fake{Respond: func(task, prompt string) (string, error) {
		return "```json\n{\"intent\":\"talk\",\"confidence\":0.9}\n```", nil
	}}
	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := f.GenerateJSON(context.Background(), "p", TaskPlanner, &out); err != nil {
		t.Fatal(err)
	}
	if out.Intent != "talk" || out.Confidence != 0.9 {
		t.Errorf("unexpected decode: %+v", out)
	}
	if len(f.Calls()) != 1 || f.Calls()[0].Task != TaskPlanner {
		t.Errorf("call not recorded: %+v", f.Calls())
	}
}

func TestFakeMalformedJSON(t *testing.T) {
	f := &Fake{Respond: func(string, string) (string, error) { return "not json", nil }}
	var out map[string]any
	err := f.GenerateJSON(context.Background(), "p", TaskGenerator, &out)
	if !errors.Is(err, ErrMalformedJSON) {
		t.Errorf("expected ErrMalformedJSON, got %v", err)
	}
}

func TestFakeCancelledContextIsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Fake{}).GenerateText(ctx, "p", TaskStory)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}
