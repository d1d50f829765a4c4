package middlewares

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nutriscan/nutriscan/internal/cache"
)

// ResponseCache serves repeated GETs from the injected store. Entries are
// keyed per user so one caller can never see another's cached payload, and
// the short store TTL is the only invalidation.
func ResponseCache(store cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cacheKey(c)

		if body, ok := store.Get(c.Request.Context(), key); ok {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			c.Abort()
			return
		}

		rec := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rec

		c.Next()

		if rec.Status() == http.StatusOK && rec.buf.Len() > 0 {
			store.Set(c.Request.Context(), key, rec.buf.Bytes())
		}
	}
}

func cacheKey(c *gin.Context) string {
	uid, _ := UserIDFromContext(c)

	return "resp:" + uid + ":" + c.Request.URL.RequestURI()
}

type recordingWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)

	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)

	return w.ResponseWriter.WriteString(s)
}
