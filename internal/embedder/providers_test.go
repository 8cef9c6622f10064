package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastRetry keeps backoff delays out of the test runtime
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func newTestProvider(t *testing.T, endpoint string, cache *Cache) *BGEProvider {
	t.Helper()
	provider, err := NewBGEProvider(Config{
		Endpoint:  endpoint,
		APIKey:    "test-key",
		Dimension: 4,
		BatchSize: 5,
		Retry:     fastRetry(),
	}, cache)
	require.NoError(t, err)
	return provider
}

// embeddingData builds one data entry of an embeddings response
func embeddingData(index, dim int, fill float32) map[string]interface{} {
	vector := make([]float32, dim)
	for i := range vector {
		vector[i] = fill
	}
	return map[string]interface{}{"index": index, "embedding": vector}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestBGEProvider_GenerateEmbedding(t *testing.T) {
	var gotBody struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		writeJSON(w, map[string]interface{}{
			"model": DefaultBGEModel,
			"data":  []interface{}{embeddingData(0, 4, 0.5)},
		})
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, nil)
	defer provider.Close()

	emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "tiered store promotion"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, DefaultBGEModel, gotBody.Model)
	assert.Equal(t, []string{"tiered store promotion"}, gotBody.Input)

	assert.Equal(t, 4, emb.Dimension)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, emb.Vector)
	assert.Equal(t, ProviderBGE, emb.Provider)
	assert.Equal(t, DefaultBGEModel, emb.Model)
}

func TestBGEProvider_BatchPreservesInputOrder(t *testing.T) {
	// The service reports results out of order; the index field must win.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"model": DefaultBGEModel,
			"data": []interface{}{
				embeddingData(2, 4, 2.0),
				embeddingData(0, 4, 0.0),
				embeddingData(1, 4, 1.0),
			},
		})
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, nil)
	defer provider.Close()

	resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"first", "second", "third"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)

	for i, want := range []float32{0.0, 1.0, 2.0} {
		assert.Equal(t, want, resp.Embeddings[i].Vector[0], "embedding %d out of order", i)
	}
}

func TestBGEProvider_BatchWithoutIndexFallsBackToPosition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No index field at all
		writeJSON(w, map[string]interface{}{
			"data": []interface{}{
				map[string]interface{}{"embedding": []float32{1, 0, 0, 0}},
				map[string]interface{}{"embedding": []float32{0, 1, 0, 0}},
			},
		})
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, nil)
	defer provider.Close()

	resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
		Texts: []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, float32(1), resp.Embeddings[0].Vector[0])
	assert.Equal(t, float32(1), resp.Embeddings[1].Vector[1])
}

func TestBGEProvider_MalformedResponses(t *testing.T) {
	tests := []struct {
		name    string
		payload interface{}
		raw     string
		wantErr error
	}{
		{
			name:    "empty body",
			raw:     "",
			wantErr: ErrEmptyResponse,
		},
		{
			name:    "invalid json",
			raw:     "{not json",
			wantErr: ErrMalformedResponse,
		},
		{
			name:    "no data entries",
			payload: map[string]interface{}{"data": []interface{}{}},
			wantErr: ErrEmptyResponse,
		},
		{
			name: "count mismatch",
			payload: map[string]interface{}{
				"data": []interface{}{embeddingData(0, 4, 1.0)},
			},
			wantErr: ErrMalformedResponse,
		},
		{
			name: "empty embedding entry",
			payload: map[string]interface{}{
				"data": []interface{}{
					embeddingData(0, 4, 1.0),
					map[string]interface{}{"index": 1, "embedding": []float32{}},
				},
			},
			wantErr: ErrEmptyEmbedding,
		},
		{
			name: "wrong dimension",
			payload: map[string]interface{}{
				"data": []interface{}{
					embeddingData(0, 4, 1.0),
					embeddingData(1, 7, 1.0),
				},
			},
			wantErr: ErrMalformedResponse,
		},
		{
			name: "index out of range",
			payload: map[string]interface{}{
				"data": []interface{}{
					embeddingData(0, 4, 1.0),
					embeddingData(5, 4, 1.0),
				},
			},
			wantErr: ErrMalformedResponse,
		},
		{
			name: "duplicate index",
			payload: map[string]interface{}{
				"data": []interface{}{
					embeddingData(0, 4, 1.0),
					embeddingData(0, 4, 2.0),
				},
			},
			wantErr: ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				if tt.payload != nil {
					writeJSON(w, tt.payload)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.raw))
			}))
			defer server.Close()

			provider := newTestProvider(t, server.URL, nil)
			defer provider.Close()

			_, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{
				Texts: []string{"one", "two"},
			})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int32(1), calls.Load(), "malformed responses must not be retried")
		})
	}
}

func TestBGEProvider_RetriesTransientFailures(t *testing.T) {
	t.Run("recovers after 429 and 500", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch calls.Add(1) {
			case 1:
				w.WriteHeader(http.StatusTooManyRequests)
			case 2:
				w.WriteHeader(http.StatusInternalServerError)
			default:
				writeJSON(w, map[string]interface{}{
					"data": []interface{}{embeddingData(0, 4, 1.0)},
				})
			}
		}))
		defer server.Close()

		provider := newTestProvider(t, server.URL, nil)
		defer provider.Close()

		emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "retry me"})
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, float32(1.0), emb.Vector[0])
	})

	t.Run("rate limit classified after exhaustion", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		provider := newTestProvider(t, server.URL, nil)
		defer provider.Close()

		_, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "always throttled"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.Equal(t, int32(3), calls.Load(), "should use every attempt before giving up")
	})

	t.Run("server error classified after exhaustion", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		provider := newTestProvider(t, server.URL, nil)
		defer provider.Close()

		_, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "down"})
		assert.ErrorIs(t, err, ErrServerError)
	})

	t.Run("permanent rejection fails fast", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "invalid api key"}`))
		}))
		defer server.Close()

		provider := newTestProvider(t, server.URL, nil)
		defer provider.Close()

		_, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "rejected"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRequestRejected)
		assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
	})
}

func TestBGEProvider_TruncatesLongInput(t *testing.T) {
	t.Run("proactive truncation before send", func(t *testing.T) {
		var gotLen int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Input []string `json:"input"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotLen = len(body.Input[0])
			writeJSON(w, map[string]interface{}{
				"data": []interface{}{embeddingData(0, 4, 1.0)},
			})
		}))
		defer server.Close()

		provider, err := NewBGEProvider(Config{
			Endpoint:      server.URL,
			Dimension:     4,
			MaxInputChars: 100,
			Retry:         fastRetry(),
		}, nil)
		require.NoError(t, err)
		defer provider.Close()

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{
			Text: strings.Repeat("x", 500),
		})
		require.NoError(t, err)
		assert.Equal(t, 100, gotLen)
	})

	t.Run("shrinks again when service still rejects", func(t *testing.T) {
		var lengths []int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Input []string `json:"input"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			lengths = append(lengths, len(body.Input[0]))

			if len(body.Input[0]) > 25 {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error": "input exceeds maximum context length"}`))
				return
			}
			writeJSON(w, map[string]interface{}{
				"data": []interface{}{embeddingData(0, 4, 1.0)},
			})
		}))
		defer server.Close()

		provider, err := NewBGEProvider(Config{
			Endpoint:             server.URL,
			Dimension:            4,
			MaxInputChars:        100,
			MaxTruncationRetries: 2,
			Retry:                fastRetry(),
		}, nil)
		require.NoError(t, err)
		defer provider.Close()

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{
			Text: strings.Repeat("y", 500),
		})
		require.NoError(t, err)
		assert.Equal(t, []int{100, 50, 25}, lengths)
	})

	t.Run("gives up after bounded shrink attempts", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": "text too long"}`))
		}))
		defer server.Close()

		provider, err := NewBGEProvider(Config{
			Endpoint:             server.URL,
			Dimension:            4,
			MaxInputChars:        100,
			MaxTruncationRetries: 1,
			Retry:                fastRetry(),
		}, nil)
		require.NoError(t, err)
		defer provider.Close()

		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{
			Text: strings.Repeat("z", 500),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRequestRejected)
		assert.Equal(t, int32(2), calls.Load(), "initial call plus one shrink attempt")
	})
}

func TestBGEProvider_Caching(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, map[string]interface{}{
			"data": []interface{}{embeddingData(0, 4, 1.0)},
		})
	}))
	defer server.Close()

	provider := newTestProvider(t, server.URL, NewCache(10))
	defer provider.Close()

	ctx := context.Background()
	_, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cache me"})
	require.NoError(t, err)
	_, err = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "cache me"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "second identical request must be served from cache")
}

func TestBGEProvider_BatchTooLarge(t *testing.T) {
	provider := newTestProvider(t, "http://localhost:1", nil)
	defer provider.Close()

	texts := make([]string, provider.BatchSize()+1)
	for i := range texts {
		texts[i] = "text"
	}

	_, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: texts})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestBGEProvider_Ping(t *testing.T) {
	t.Run("healthy service", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodGet, r.Method)
			require.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		provider := newTestProvider(t, server.URL, nil)
		defer provider.Close()

		assert.NoError(t, provider.Ping(context.Background()))
	})

	t.Run("unhealthy service", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		provider := newTestProvider(t, server.URL, nil)
		defer provider.Close()

		assert.Error(t, provider.Ping(context.Background()))
	})

	t.Run("unreachable service", func(t *testing.T) {
		provider := newTestProvider(t, "http://localhost:1", nil)
		defer provider.Close()

		assert.Error(t, provider.Ping(context.Background()))
	})
}

func TestNewBGEProvider_Defaults(t *testing.T) {
	provider, err := NewBGEProvider(Config{}, nil)
	require.NoError(t, err)
	defer provider.Close()

	assert.Equal(t, DefaultBGEModel, provider.Model())
	assert.Equal(t, BGEDimension, provider.Dimension())
	assert.Equal(t, DefaultBatchSize, provider.BatchSize())
	assert.Equal(t, ProviderBGE, provider.Provider())
}

func TestNewBGEProvider_Invalid(t *testing.T) {
	_, err := NewBGEProvider(Config{Truncation: "middle"}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewBGEProvider(Config{BatchSize: MaxBatchSize + 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
