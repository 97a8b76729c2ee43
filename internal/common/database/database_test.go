package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medchat-engine/internal/common/config"
)

func setupRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisFromClient(rdb), mr
}

func TestRedisClient_GetSetMiss(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()

	_, err := client.Get(ctx, "chat:kb:missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, client.Set(ctx, "chat:kb:a", "payload", time.Minute))
	val, err := client.Get(ctx, "chat:kb:a")
	require.NoError(t, err)
	assert.Equal(t, "payload", val)
	require.NoError(t, client.Ping(ctx))
}

func TestRedisClient_DelPattern(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	for _, k := range []string{"chat:kb:1", "chat:kb:2", "other:1"} {
		require.NoError(t, mr.Set(k, "x"))
	}

	deleted, err := client.DelPattern(ctx, "chat:kb:*")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.True(t, mr.Exists("other:1"))
	assert.False(t, mr.Exists("chat:kb:1"))
}

func TestPostgresClient_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	client := NewPostgresFromDB(db)
	require.NoError(t, client.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestElasticsearchClient_PingAndIndexExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead && r.URL.Path == "/knowledge_chunks":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := NewElasticsearch(config.ElasticsearchConfig{URL: server.URL})
	require.NoError(t, err)

	require.NoError(t, client.Ping(context.Background()))

	ok, err := client.IndexExists(context.Background(), "knowledge_chunks")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.IndexExists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
