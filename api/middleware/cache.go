// Package middleware holds gin middleware that needs its own dependencies.
package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tianzhicdev/dogetionary-sub008/internal/services/cache"
)

// cachedResponse is what ResponseCache stores per request.
type cachedResponse struct {
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	ETag        string    `json:"etag"`
	CachedAt    time.Time `json:"cached_at"`
}

// captureWriter tees the response body so it can be stored.
type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *captureWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// ResponseCache serves repeated GET requests from store for ttl. Only 200
// responses are stored. Clients can bypass it with Cache-Control: no-cache.
func ResponseCache(store cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		if bypass(c.Request) {
			c.Header("X-Cache", "BYPASS")
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := cacheKey(c.Request)
		if data, ok := store.Get(ctx, key); ok {
			var cached cachedResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				c.Header("X-Cache", "HIT")
				c.Header("Age", strconv.Itoa(int(time.Since(cached.CachedAt).Seconds())))
				c.Header("ETag", cached.ETag)
				if match := c.GetHeader("If-None-Match"); match != "" && match == cached.ETag {
					c.AbortWithStatus(http.StatusNotModified)
					return
				}
				c.Data(cached.Status, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
		}

		c.Header("X-Cache", "MISS")
		w := &captureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w
		c.Next()

		if w.Status() != http.StatusOK || w.body.Len() == 0 {
			return
		}
		data, err := json.Marshal(cachedResponse{
			Status:      w.Status(),
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
			ETag:        etag(w.body.Bytes()),
			CachedAt:    time.Now(),
		})
		if err == nil {
			_ = store.Set(ctx, key, data, ttl)
		}
	}
}

// PurgeOnWrite clears store after a write request succeeds, so cached
// reads never outlive the data they were built from.
func PurgeOnWrite(store cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if store == nil || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			return
		}
		if status := c.Writer.Status(); status >= 200 && status < 300 {
			_ = store.Clear(c.Request.Context())
		}
	}
}

func bypass(req *http.Request) bool {
	for _, directive := range strings.Split(strings.ToLower(req.Header.Get("Cache-Control")), ",") {
		switch strings.TrimSpace(directive) {
		case "no-cache", "no-store", "max-age=0":
			return true
		}
	}
	return req.Header.Get("Pragma") == "no-cache"
}

func cacheKey(req *http.Request) string {
	parts := []string{req.URL.Path}
	params := req.URL.Query()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range params[k] {
			parts = append(parts, k+"="+v)
		}
	}
	return "http:" + strings.Join(parts, ":")
}

func etag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}
