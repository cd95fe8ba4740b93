package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbot/internal/rag"
)

type fakeProvider struct {
	embedStatus  []int // consumed per call, 200 once exhausted
	chatStatus   []int
	delay        time.Duration
	embedCalls   atomic.Int32
	chatCalls    atomic.Int32
	lastChatBody map[string]any
}

func (p *fakeProvider) next(statuses *[]int) int {
	if len(*statuses) == 0 {
		return http.StatusOK
	}
	s := (*statuses)[0]
	*statuses = (*statuses)[1:]
	return s
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/v1/embeddings":
		p.embedCalls.Add(1)
		if status := p.next(&p.embedStatus); status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"provider said no","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],
			"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	case "/v1/chat/completions":
		p.chatCalls.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&p.lastChatBody)
		if status := p.next(&p.chatStatus); status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Cats are mammals."},"finish_reason":"stop"}]}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, p *fakeProvider, timeout time.Duration, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{
		BaseURL:    srv.URL + "/v1",
		APIKey:     "test-key",
		Timeout:    timeout,
		MaxRetries: retries,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestEmbed(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(t, p, time.Second, 0)

	vec, err := c.Embed(context.Background(), "cats")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)

	again, err := c.Embed(context.Background(), "cats")
	require.NoError(t, err)
	assert.Equal(t, vec, again)
	assert.EqualValues(t, 2, p.embedCalls.Load())
}

func TestEmbedEmptyInput(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(t, p, time.Second, 2)

	_, err := c.Embed(context.Background(), "   ")
	var embErr *rag.EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.ErrorIs(t, err, rag.ErrInputRejected)
	assert.Zero(t, p.embedCalls.Load())
}

func TestEmbedRetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{embedStatus: []int{http.StatusServiceUnavailable, http.StatusTooManyRequests}}
	c := newTestClient(t, p, time.Second, 3)

	vec, err := c.Embed(context.Background(), "cats")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.EqualValues(t, 3, p.embedCalls.Load())
}

func TestPipelineDoesNotMultiplyClientRetries(t *testing.T) {
	statuses := make([]int, 20)
	for i := range statuses {
		statuses[i] = http.StatusServiceUnavailable
	}
	p := &fakeProvider{embedStatus: statuses}
	c := newTestClient(t, p, time.Second, 2)
	assert.True(t, c.RetriesTransient())

	pipeline := rag.NewPipeline(c, rag.WithChunkRetries(3), rag.WithRetryDelay(0))
	_, err := pipeline.EmbedAll(context.Background(), []rag.Chunk{{Ordinal: 0, Text: "cats", End: 4}}, 1, nil)
	assert.ErrorIs(t, err, rag.ErrUpstreamError)
	assert.EqualValues(t, 3, p.embedCalls.Load())

	assert.False(t, newTestClient(t, &fakeProvider{}, time.Second, 0).RetriesTransient())
}

func TestEmbedRejectedInputIsNotRetried(t *testing.T) {
	p := &fakeProvider{embedStatus: []int{http.StatusBadRequest}}
	c := newTestClient(t, p, time.Second, 3)

	_, err := c.Embed(context.Background(), "cats")
	assert.ErrorIs(t, err, rag.ErrInputRejected)
	assert.EqualValues(t, 1, p.embedCalls.Load())
}

func TestEmbedTimeout(t *testing.T) {
	p := &fakeProvider{delay: 300 * time.Millisecond}
	c := newTestClient(t, p, 30*time.Millisecond, 0)

	_, err := c.Embed(context.Background(), "cats")
	assert.ErrorIs(t, err, rag.ErrUpstreamTimeout)
	assert.NotErrorIs(t, err, rag.ErrUpstreamError)
}

func TestComplete(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(t, p, time.Second, 0)

	out, err := c.Complete(context.Background(), []rag.Message{
		{Role: rag.RoleSystem, Content: "be brief"},
		{Role: rag.RoleUser, Content: "are cats mammals?"},
	}, rag.CompletionOptions{Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "Cats are mammals.", out)

	assert.Equal(t, DefaultChatModel, p.lastChatBody["model"])
	assert.InDelta(t, 0.7, p.lastChatBody["temperature"], 1e-6)
	msgs, ok := p.lastChatBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestCompleteDefaultTemperatureOmitted(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(t, p, time.Second, 0)

	_, err := c.Complete(context.Background(), []rag.Message{{Role: rag.RoleUser, Content: "hi"}}, rag.CompletionOptions{})
	require.NoError(t, err)
	_, present := p.lastChatBody["temperature"]
	assert.False(t, present)
}

func TestCompleteServerError(t *testing.T) {
	p := &fakeProvider{chatStatus: []int{500, 500}}
	c := newTestClient(t, p, time.Second, 1)

	_, err := c.Complete(context.Background(), []rag.Message{{Role: rag.RoleUser, Content: "hi"}}, rag.CompletionOptions{})
	assert.ErrorIs(t, err, rag.ErrUpstreamError)
	assert.EqualValues(t, 2, p.chatCalls.Load())
}

func TestCompleteUnauthorizedIsNotRetried(t *testing.T) {
	p := &fakeProvider{chatStatus: []int{http.StatusUnauthorized}}
	c := newTestClient(t, p, time.Second, 3)

	_, err := c.Complete(context.Background(), []rag.Message{{Role: rag.RoleUser, Content: "hi"}}, rag.CompletionOptions{})
	assert.ErrorIs(t, err, rag.ErrUpstreamError)
	assert.EqualValues(t, 1, p.chatCalls.Load())
}
