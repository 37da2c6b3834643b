package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// scriptedChats answers each Create with the next scripted reply, in order.
type scriptedChats struct {
	mu      sync.Mutex
	replies []reply
	calls   []call
}

type reply struct {
	text string
	err  error
}

type call struct {
	model   string
	system  string
	message string
}

type scriptedChat struct {
	owner *scriptedChats
	index int
	reply reply
}

func (c *scriptedChat) SendMessage(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	c.owner.mu.Lock()
	for _, p := range parts {
		c.owner.calls[c.index].message += p.Text
	}
	c.owner.mu.Unlock()

	if c.reply.err != nil {
		return nil, c.reply.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: c.reply.text}}}}},
	}, nil
}

func (s *scriptedChats) Create(_ context.Context, model string, config *genai.GenerateContentConfig, _ []*genai.Content) (chatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}

	c := call{model: model}
	if config != nil && config.SystemInstruction != nil {
		c.system = config.SystemInstruction.Parts[0].Text
	}
	s.calls = append(s.calls, c)

	next := s.replies[0]
	s.replies = s.replies[1:]
	return &scriptedChat{owner: s, index: len(s.calls) - 1, reply: next}, nil
}

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	original := sleep
	var slept []time.Duration
	sleep = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleep = original })
	return &slept
}

var (
	errInternal  = genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	errBadInput  = genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}
	errLongQuota = genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}
	errShortQuota = genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Details: []map[string]any{{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "3s"}},
	}
)

func TestComplete(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		replies    []reply
		wantText   string
		wantErr    bool
		wantCalls  int
		wantSleeps []time.Duration
	}{
		{
			name:       "first attempt succeeds",
			maxRetries: 3,
			replies:    []reply{{text: `{"score": 70}`}},
			wantText:   `{"score": 70}`,
			wantCalls:  1,
		},
		{
			name:       "retries server errors with backoff",
			maxRetries: 3,
			replies:    []reply{{err: errInternal}, {err: errInternal}, {text: "ok"}},
			wantText:   "ok",
			wantCalls:  3,
			wantSleeps: []time.Duration{baseRetryDelay, 2 * baseRetryDelay},
		},
		{
			name:       "gives up when attempts are exhausted",
			maxRetries: 2,
			replies:    []reply{{err: errInternal}, {err: errInternal}},
			wantErr:    true,
			wantCalls:  2,
			wantSleeps: []time.Duration{baseRetryDelay},
		},
		{
			name:       "waits the requested quota delay",
			maxRetries: 3,
			replies:    []reply{{err: errShortQuota}, {text: "ok"}},
			wantText:   "ok",
			wantCalls:  2,
			wantSleeps: []time.Duration{3 * time.Second},
		},
		{
			name:       "does not wait for long quota delays",
			maxRetries: 3,
			replies:    []reply{{err: errLongQuota}},
			wantErr:    true,
			wantCalls:  1,
		},
		{
			name:       "does not retry client errors",
			maxRetries: 3,
			replies:    []reply{{err: errBadInput}},
			wantErr:    true,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slept := stubSleep(t)
			chats := &scriptedChats{replies: tt.replies}
			g := &Generator{chats: chats, model: "gemini-2.5-flash", maxRetries: tt.maxRetries, logger: zap.NewNop()}

			text, err := g.Complete(context.Background(), "rate this posting", "you are a recruiter")
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if text != tt.wantText {
				t.Fatalf("expected %q, got %q", tt.wantText, text)
			}
			if len(chats.calls) != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d", tt.wantCalls, len(chats.calls))
			}
			if len(*slept) != len(tt.wantSleeps) {
				t.Fatalf("expected sleeps %v, got %v", tt.wantSleeps, *slept)
			}
			for i, d := range tt.wantSleeps {
				if (*slept)[i] != d {
					t.Fatalf("expected sleeps %v, got %v", tt.wantSleeps, *slept)
				}
			}
			for _, c := range chats.calls {
				if c.system != "you are a recruiter" || c.message != "rate this posting" || c.model != "gemini-2.5-flash" {
					t.Fatalf("unexpected call %+v", c)
				}
			}
		})
	}
}

func TestCompleteRejectsEmptyPrompt(t *testing.T) {
	g := &Generator{chats: &scriptedChats{}, model: "m", maxRetries: 1, logger: zap.NewNop()}
	if _, err := g.Complete(context.Background(), "   ", "system"); err == nil {
		t.Fatal("expected error for empty prompt")
	}

	var missing *Generator
	if _, err := missing.Complete(context.Background(), "prompt", ""); err == nil {
		t.Fatal("expected error for nil generator")
	}
	if missing.Model() != "" {
		t.Fatal("nil generator has no model")
	}
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	if _, err := NewGenerator(context.Background(), "  ", "", 0, nil); err == nil {
		t.Fatal("expected error without api key")
	}
}
