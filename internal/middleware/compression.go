package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ExcludedPaths    []string // Path prefixes that are never compressed
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		CompressionLevel: 6, // Balanced compression level
		ExcludedPaths:    []string{"/health", "/metrics"},
	}
}

// CompressionMiddleware provides gzip compression for HTTP responses.
// Score listings and export payloads are large JSON bodies that compress
// well, so this sits in front of the whole /api group.
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool // Pool of gzip writers for better performance
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	level := config.CompressionLevel
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
		pool: sync.Pool{
			New: func() interface{} {
				gz, _ := gzip.NewWriterLevel(io.Discard, level)
				return gz
			},
		},
	}
}

// Handler returns a Gin middleware function for response compression
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cm.shouldCompress(c.Request) {
			c.Next()
			cm.stats.RecordRequest(int64(c.Writer.Size()), int64(c.Writer.Size()), false)
			return
		}

		gz := cm.getGzipWriter(c.Writer)
		defer cm.returnGzipWriter(gz)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")

		gzw := &gzipResponseWriter{ResponseWriter: c.Writer, gzipWriter: gz}
		c.Writer = gzw

		c.Next()

		gz.Close()
		cm.stats.RecordRequest(gzw.bytesIn, int64(c.Writer.Size()), true)
	}
}

// shouldCompress checks whether the request is eligible for compression
func (cm *CompressionMiddleware) shouldCompress(r *http.Request) bool {
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return false
	}
	// Compressing an upgraded connection corrupts the stream
	if r.Header.Get("Connection") == "Upgrade" {
		return false
	}
	for _, prefix := range cm.config.ExcludedPaths {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	return true
}

// getGzipWriter gets a gzip writer from the pool
func (cm *CompressionMiddleware) getGzipWriter(w io.Writer) *gzip.Writer {
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(w)
	return gz
}

// returnGzipWriter returns a gzip writer to the pool
func (cm *CompressionMiddleware) returnGzipWriter(gz *gzip.Writer) {
	cm.pool.Put(gz)
}

// gzipResponseWriter wraps a gin.ResponseWriter with gzip compression
type gzipResponseWriter struct {
	gin.ResponseWriter
	gzipWriter *gzip.Writer
	bytesIn    int64
}

// Write writes data through the gzip writer
func (gzw *gzipResponseWriter) Write(data []byte) (int, error) {
	gzw.bytesIn += int64(len(data))
	return gzw.gzipWriter.Write(data)
}

// WriteString writes a string through the gzip writer
func (gzw *gzipResponseWriter) WriteString(s string) (int, error) {
	return gzw.Write([]byte(s))
}

// WriteHeader strips Content-Length before the header goes out; the
// compressed length is not known up front.
func (gzw *gzipResponseWriter) WriteHeader(statusCode int) {
	gzw.Header().Del("Content-Length")
	gzw.ResponseWriter.WriteHeader(statusCode)
}

// Flush flushes the gzip writer
func (gzw *gzipResponseWriter) Flush() {
	gzw.gzipWriter.Flush()
	gzw.ResponseWriter.Flush()
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	mutex              sync.RWMutex
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize

	if compressed {
		cs.CompressedRequests++
		cs.CompressedBytes += compressedSize
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	compressionRatio := float64(0)
	if cs.TotalBytes > 0 {
		compressionRatio = float64(cs.CompressedBytes) / float64(cs.TotalBytes)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"compressed_bytes":    cs.CompressedBytes,
		"compression_ratio":   compressionRatio,
		"compression_savings": 1.0 - compressionRatio,
		"compression_enabled": cs.TotalRequests > 0 && cs.CompressedRequests > 0,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
