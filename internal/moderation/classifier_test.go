package moderation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClassifier(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/moderations", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel, _ = body["model"].(string)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "modr-1",
  "model": "omni-moderation-latest",
  "results": [{
    "flagged": true,
    "categories": {"sexual": true, "sexual/minors": true, "violence": false},
    "category_scores": {"sexual": 0.91, "sexual/minors": 0.7, "violence": 0.01}
  }]
}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClassifier(ClientOptions{
		APIKey: "sk-test",
		Extra:  []option.RequestOption{option.WithBaseURL(srv.URL + "/")},
	})
	require.NoError(t, err)

	res, err := c.ClassifyText(t.Context(), "anything")
	require.NoError(t, err)
	require.Equal(t, "omni-moderation-latest", gotModel)
	require.True(t, res.Flagged)
	require.Equal(t, CategoryMinors, res.Category)
	require.Contains(t, res.Labels, "sexual")
}

func TestOpenAIClassifierRequiresKey(t *testing.T) {
	_, err := NewOpenAIClassifier(ClientOptions{})
	require.Error(t, err)
	_, err = NewOpenAIImageClassifier(ClientOptions{APIKey: " "})
	require.Error(t, err)
}

func TestOpenAIImageClassifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "` + "```json\\n{\\\"flagged\\\": true, \\\"category\\\": \\\"graphic violence\\\", \\\"labels\\\": [\\\"blood\\\"]}\\n```" + `"}
  }]
}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIImageClassifier(ClientOptions{
		APIKey:  "sk-test",
		Timeout: 2 * time.Second,
		Extra:   []option.RequestOption{option.WithBaseURL(srv.URL + "/")},
	})
	require.NoError(t, err)

	res, err := c.ClassifyImage(t.Context(), "https://img.example/x.png", "make it brighter")
	require.NoError(t, err)
	require.True(t, res.Flagged)
	require.Equal(t, CategoryViolence, res.Category)
	require.Equal(t, []string{"blood"}, res.Labels)
}

func TestParseImageVerdict(t *testing.T) {
	res, err := parseImageVerdict(`{"flagged": false, "category": "none"}`)
	require.NoError(t, err)
	require.False(t, res.Flagged)
	require.Equal(t, Category(""), res.Category)

	res, err = parseImageVerdict(`Sure: {"flagged": true, "category": "weird"}`)
	require.NoError(t, err)
	require.Equal(t, CategoryOther, res.Category)

	_, err = parseImageVerdict("I cannot help with that")
	require.Error(t, err)
}

func TestWebhookClassifier(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		reply    string
		flagged  bool
		category Category
		wantErr  bool
	}{
		{name: "block", status: http.StatusOK, reply: `{"action":"block","category":"nudity","violations":["explicit"]}`, flagged: true, category: CategorySexual},
		{name: "allow", status: http.StatusOK, reply: `{"action":"allow"}`},
		{name: "server error", status: http.StatusBadGateway, reply: `{}`, wantErr: true},
		{name: "garbage", status: http.StatusOK, reply: `not json`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "secret", r.Header.Get("X-Moderation-Key"))
				var body webhookRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				require.Equal(t, "https://img.example/y.png", body.ImageURL)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.reply))
			}))
			defer srv.Close()

			c := NewWebhookClassifier(WebhookOptions{URL: srv.URL, AuthHeader: "X-Moderation-Key", AuthValue: "secret"})
			res, err := c.ClassifyImage(t.Context(), "https://img.example/y.png", "")
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.flagged, res.Flagged)
			require.Equal(t, tc.category, res.Category)
		})
	}

	require.Nil(t, NewWebhookClassifier(WebhookOptions{}))
}
