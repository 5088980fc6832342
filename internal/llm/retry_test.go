package llm

import (
	"context"
	"errors"
	"testing"
)

type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedClient) Complete(ctx context.Context, messages []Message) (string, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.errs) {
		idx = len(s.errs) - 1
	}
	return s.responses[idx], s.errs[idx]
}

func TestRetrying_SucceedsAfterTransientFailure(t *testing.T) {
	base := &scriptedClient{
		responses: []string{"", `{"ok":true}`},
		errs:      []error{errors.New("connection reset by peer"), nil},
	}

	client := NewRetrying(base, 3)
	resp, err := client.Complete(context.Background(), []Message{User("hello")})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if resp != `{"ok":true}` {
		t.Fatalf("unexpected response %q", resp)
	}
	if base.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", base.calls)
	}
}

func TestRetrying_NonRetriableFailsImmediately(t *testing.T) {
	permanent := errors.New("provider error: invalid api key (auth)")
	base := &scriptedClient{
		responses: []string{""},
		errs:      []error{permanent},
	}

	client := NewRetrying(base, 3)
	if _, err := client.Complete(context.Background(), nil); !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected single call, got %d", base.calls)
	}
}

func TestRetrying_ExhaustedAttemptsReportUnavailable(t *testing.T) {
	base := &scriptedClient{
		responses: []string{"", "", ""},
		errs:      []error{ErrUnavailable, ErrUnavailable, ErrUnavailable},
	}

	client := NewRetrying(base, 3)
	if _, err := client.Complete(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if base.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", base.calls)
	}
}

func TestRetrying_CancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	base := &scriptedClient{
		responses: []string{""},
		errs:      []error{ErrUnavailable},
	}

	client := NewRetrying(base, 3)
	if _, err := client.Complete(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected single call before cancellation, got %d", base.calls)
	}
}
