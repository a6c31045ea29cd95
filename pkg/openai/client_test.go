package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "autolecture/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, chunks []string, check func(body map[string]any)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if check != nil {
			check(body)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for i, c := range chunks {
			finish := "null"
			if i == len(chunks)-1 {
				finish = `"stop"`
			}
			content, _ := json.Marshal(c)
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%s},\"finish_reason\":%s}]}\n\n", content, finish)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGenerateJoinsStreamedChunks(t *testing.T) {
	server := sseServer(t, []string{"안녕하세요, ", "김교수 ", "강사입니다."}, func(body map[string]any) {
		assert.Equal(t, "gemini-2.5-flash", body["model"])
		assert.Equal(t, true, body["stream"])
		assert.InDelta(t, 0.95, body["top_p"], 0.001)
		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "강의 스크립트를 써 주세요", messages[1].(map[string]any)["content"])
	})

	client := NewClient(Options{
		BaseURL:      server.URL + "/",
		APIKey:       "test-key",
		Model:        "gemini-2.5-flash",
		Temperature:  1.0,
		TopP:         0.95,
		MaxTokens:    8192,
		SystemPrompt: "한국어로 답변해 주세요.",
	})

	got, err := client.Generate(context.Background(), "강의 스크립트를 써 주세요")
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요, 김교수 강사입니다.", got)
}

func TestGenerateEmptyCompletion(t *testing.T) {
	server := sseServer(t, []string{"  "}, nil)
	client := NewClient(Options{BaseURL: server.URL, APIKey: "test-key", Model: "m"})

	_, err := client.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeTextGenEmpty))
}

func TestGenerateHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"API key not valid","type":"invalid_request_error"}}`))
	}))
	t.Cleanup(server.Close)

	_, err := NewClient(Options{BaseURL: server.URL, APIKey: "test-key", Model: "m"}).Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeTextGenFailed))
	assert.Contains(t, err.Error(), "API key not valid")
}
