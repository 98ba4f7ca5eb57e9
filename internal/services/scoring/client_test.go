package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tianzhicdev/dogetionary-sub008/pkg/errors"
)

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "demo-model",
		"choices": []any{
			map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(completion(content))
}

func sampleRequest() Request {
	return Request{
		Transcript: "This is an emergency! Call a doctor.",
		Title:      "Rescue scene",
		Duration:   4.5,
		Vocabulary: []string{"emergency", "doctor", "ambulance"},
		Language:   "en",
	}
}

func TestClientScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test", r.Header.Get("Authorization"))

		var body struct {
			Model          string            `json:"model"`
			ResponseFormat map[string]string `json:"response_format"`
			Messages       []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "demo-model", body.Model)
		assert.Equal(t, "json_object", body.ResponseFormat["type"])
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Contains(t, body.Messages[1].Content, "emergency, doctor, ambulance")
		assert.Contains(t, body.Messages[1].Content, "Call a doctor.")

		writeCompletion(w, `{"words":[{"word":" emergency ","score":0.8,"reason":"spoken clearly"},{"word":"doctor","score":0.5,"reason":"brief"}]}`)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	scores, err := client.Score(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, WordScore{Word: "emergency", Score: 0.8, Reason: "spoken clearly"}, scores[0])
	assert.Equal(t, int64(1), client.GetMetrics()["requests"])
}

func TestClientScoreCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "```json\n{\"words\":[{\"word\":\"doctor\",\"score\":0.7}]}\n```")
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
	scores, err := client.Score(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, "doctor", scores[0].Word)
}

func TestClientScoreRetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeCompletion(w, `{"words":[]}`)
	}))
	defer server.Close()

	var delays []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, MaxRetries: 3, RetryBackoff: time.Second, MaxBackoff: 8 * time.Second},
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
	)

	scores, err := client.Score(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Empty(t, scores)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, delays)
}

func TestClientScoreBackoffNeverShrinks(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.Header().Set("Retry-After", "6")
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			writeCompletion(w, `{"words":[]}`)
		}
	}))
	defer server.Close()

	var delays []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, MaxRetries: 3, RetryBackoff: time.Second, MaxBackoff: 8 * time.Second},
		WithSleeper(func(d time.Duration) { delays = append(delays, d) }),
	)

	_, err := client.Score(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{6 * time.Second, 6 * time.Second}, delays)
}

func TestClientScoreGivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, MaxRetries: 2},
		WithSleeper(func(time.Duration) {}),
	)

	_, err := client.Score(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeTransientIO))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(1), client.GetMetrics()["failures"])
}

func TestClientScoreUnauthorizedNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL}, WithSleeper(func(time.Duration) {}))
	_, err := client.Score(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeExternalService))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientScoreValidation(t *testing.T) {
	client := NewClient(Config{APIKey: "test", BaseURL: "http://unused"})

	_, err := client.Score(context.Background(), Request{Vocabulary: []string{"a"}})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	_, err = client.Score(context.Background(), Request{Transcript: "hello"})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeValidation))

	noKey := NewClient(Config{BaseURL: "http://unused"})
	_, err = noKey.Score(context.Background(), sampleRequest())
	assert.True(t, apperrors.IsFatal(err))
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Words []WordScore `json:"words"`
	}
	require.NoError(t, DecodeJSON(`Sure! {"words":[{"word":"a","score":1}]} hope that helps`, &out))
	assert.Len(t, out.Words, 1)

	assert.Error(t, DecodeJSON("", &out))
	assert.Error(t, DecodeJSON("no json here", &out))
}
