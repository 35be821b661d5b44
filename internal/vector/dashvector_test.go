package vector

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/gardenhotel/reviewrag/internal/errors"
)

func TestDashVectorStore_Query(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody dashVectorQuery

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("dashvector-auth-token")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, sonic.Unmarshal(body, &gotBody))

		_, _ = w.Write([]byte(`{
			"code": 0,
			"output": [
				{"id": "A", "score": 0.95, "fields": {"room_type": "花园大床房"}},
				{"id": "B", "score": 0.80}
			]
		}`))
	}))
	defer server.Close()

	store := NewDashVectorStore(DashVectorConfig{
		Endpoint:   server.URL,
		APIKey:     "test-key",
		Collection: "comment_database",
	})

	hits, err := store.Query(context.Background(), []float32{0.1, 0.2}, 5,
		&Filter{Field: "room_type", Value: "花园大床房"})
	require.NoError(t, err)

	assert.Equal(t, "/v1/collections/comment_database/query", gotPath)
	assert.Equal(t, "test-key", gotAuth)
	assert.Equal(t, 5, gotBody.TopK)
	assert.Equal(t, "room_type = '花园大床房'", gotBody.Filter)
	assert.False(t, gotBody.IncludeVector)

	require.Len(t, hits, 2)
	assert.Equal(t, "A", hits[0].ID)
	assert.InDelta(t, 0.95, hits[0].Score, 1e-9)
	assert.Equal(t, "花园大床房", hits[0].Field("room_type"))
}

func TestDashVectorStore_NonZeroCodeIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": 1011, "message": "collection not found"}`))
	}))
	defer server.Close()

	store := NewDashVectorStore(DashVectorConfig{Endpoint: server.URL, Collection: "missing"})
	_, err := store.Query(context.Background(), []float32{0.1}, 5, nil)
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeVectorQuery, ragerrors.GetCode(err))
	assert.Contains(t, err.Error(), "collection not found")
}

func TestDashVectorStore_HTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	store := NewDashVectorStore(DashVectorConfig{Endpoint: server.URL, Collection: "comment_database"})
	_, err := store.Query(context.Background(), []float32{0.1}, 5, nil)
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeVectorQuery, ragerrors.GetCode(err))
}
