package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tianzhicdev/dogetionary-sub008/internal/services/cache"
)

func newCachedRouter(store cache.Cache) (*gin.Engine, *int) {
	gin.SetMode(gin.TestMode)
	calls := 0
	router := gin.New()
	router.GET("/items/:id", ResponseCache(store, 0), func(c *gin.Context) {
		calls++
		if c.Param("id") == "missing" {
			c.JSON(http.StatusNotFound, gin.H{"status": "error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "calls": calls})
	})
	router.POST("/items", PurgeOnWrite(store), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	router.POST("/broken", PurgeOnWrite(store), func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})
	return router, &calls
}

func do(router *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	router.ServeHTTP(w, req)
	return w
}

func TestResponseCache_HitAfterMiss(t *testing.T) {
	store := cache.NewMemory(0, 0)
	router, calls := newCachedRouter(store)

	first := do(router, http.MethodGet, "/items/1", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := do(router, http.MethodGet, "/items/1", nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, 1, *calls)

	etag := second.Header().Get("ETag")
	require.NotEmpty(t, etag)
	notModified := do(router, http.MethodGet, "/items/1", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, notModified.Code)
}

func TestResponseCache_ErrorsAreNotStored(t *testing.T) {
	store := cache.NewMemory(0, 0)
	router, calls := newCachedRouter(store)

	do(router, http.MethodGet, "/items/missing", nil)
	w := do(router, http.MethodGet, "/items/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 2, *calls)
}

func TestResponseCache_Bypass(t *testing.T) {
	store := cache.NewMemory(0, 0)
	router, calls := newCachedRouter(store)

	do(router, http.MethodGet, "/items/1", nil)
	w := do(router, http.MethodGet, "/items/1", http.Header{"Cache-Control": {"no-cache"}})
	assert.Equal(t, "BYPASS", w.Header().Get("X-Cache"))
	assert.Equal(t, 2, *calls)
}

func TestPurgeOnWrite(t *testing.T) {
	store := cache.NewMemory(0, 0)
	router, calls := newCachedRouter(store)

	do(router, http.MethodGet, "/items/1", nil)
	do(router, http.MethodPost, "/broken", nil)
	assert.Equal(t, "HIT", do(router, http.MethodGet, "/items/1", nil).Header().Get("X-Cache"))

	do(router, http.MethodPost, "/items", nil)
	assert.Equal(t, "MISS", do(router, http.MethodGet, "/items/1", nil).Header().Get("X-Cache"))
	assert.Equal(t, 2, *calls)
}

func TestCacheKey_SortsQuery(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/items?b=2&a=1", nil)
	b := httptest.NewRequest(http.MethodGet, "/items?a=1&b=2", nil)
	assert.Equal(t, cacheKey(a), cacheKey(b))
}
