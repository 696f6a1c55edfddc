package textgen

import (
	"context"
	"sync"
)

// Fake is an in-process Client for tests and offline runs. Respond decides
// the reply for each call; a nil Respond makes every call unavailable.
type Fake struct {
	Respond func(task, prompt string) (string, error)

	mu    sync.Mutex
	calls []Call
}

type Call struct {
	Task   string
	Prompt string
}

func (f *Fake) GenerateText(ctx context.Context, prompt, task string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newError(task, ErrTimeout, err)
	}
	f.mu.Lock()
	f.calls = append(f.calls, Call{Task: task, Prompt: prompt})
	f.mu.Unlock()
	if f.Respond == nil {
		return "", newError(task, ErrUnavailable, nil)
	}
	text, err := f.Respond(task, prompt)
	if err != nil {
		if _, ok := err.(*Error); ok {
			return "", err
		}
		return "", newError(task, ErrUnavailable, err)
	}
	if text == "" {
		return "", newError(task, ErrEmptyResponse, nil)
	}
	return text, nil
}

func (f *Fake) GenerateJSON(ctx context.Context, prompt, task string, out any) error {
	text, err := f.GenerateText(ctx, prompt, task)
	if err != nil {
		return err
	}
	return DecodeJSON(task, text, out)
}

// Calls returns the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Offline returns a Fake that fails every call.
func Offline() *Fake {
	return &Fake{}
}
