package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// Responses below this size are sent uncompressed; the brotli header
// overhead isn't worth it.
const brotliMinLength = 1024

type brotliWriter struct {
	gin.ResponseWriter
	bw         *brotli.Writer
	pending    []byte
	headerOnce sync.Once
	compressed bool
}

func (w *brotliWriter) Write(data []byte) (int, error) {
	w.pending = append(w.pending, data...)
	if len(w.pending) < brotliMinLength {
		return len(data), nil
	}

	w.headerOnce.Do(func() {
		w.compressed = true
		w.ResponseWriter.Header().Set("Content-Encoding", "br")
		w.ResponseWriter.Header().Del("Content-Length")
	})

	n, err := w.bw.Write(w.pending)
	w.pending = w.pending[:0]
	return n, err
}

func (w *brotliWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Flush drains the buffer uncompressed and forwards the flush. Streaming
// endpoints cannot tolerate compression buffering.
func (w *brotliWriter) Flush() {
	_ = w.drain()
	w.ResponseWriter.Flush()
}

func (w *brotliWriter) drain() error {
	if len(w.pending) == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.pending)
	w.pending = w.pending[:0]
	return err
}

// Brotli compresses response bodies for clients that advertise br support.
// Small responses, SSE, and WebSocket upgrades pass through untouched.
func Brotli() gin.HandlerFunc {
	return func(c *gin.Context) {
		if incompatibleProtocol(c) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		w := &brotliWriter{
			ResponseWriter: c.Writer,
			bw:             brotli.NewWriterLevel(c.Writer, brotli.DefaultCompression),
		}

		defer func() {
			if err := w.drain(); err != nil {
				_ = c.Error(err)
			}
			if w.compressed {
				w.bw.Close()
			}
		}()

		c.Writer = w
		c.Next()
	}
}

func incompatibleProtocol(c *gin.Context) bool {
	// SSE needs immediate streaming and the WebSocket handshake must not
	// be wrapped or buffered.
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream") ||
		strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.ToLower(enc)) == "br" {
			return true
		}
	}
	return false
}
