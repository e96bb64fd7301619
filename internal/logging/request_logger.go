package logging

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/router-for-me/KiteMCP/internal/buildinfo"
	"github.com/router-for-me/KiteMCP/internal/util"
	log "github.com/sirupsen/logrus"
)

// requestLogID provides sequential fallback IDs when no request ID is available.
var requestLogID atomic.Uint64

// RequestLogger records full brokerage round trips for debugging. Implementations
// must be safe for concurrent use and must never fail the request being logged.
type RequestLogger interface {
	// IsEnabled reports whether logging is currently active.
	IsEnabled() bool

	// LogRequest writes one complete request/response exchange.
	LogRequest(url, method string, requestHeaders map[string][]string, body []byte, statusCode int, responseHeaders map[string][]string, response []byte, requestID string, requestTimestamp, responseTimestamp time.Time) error
}

// FileRequestLogger writes each brokerage round trip to its own file under the
// logs directory, with credentials masked and compressed responses expanded.
type FileRequestLogger struct {
	mu      sync.Mutex
	enabled bool
	logsDir string
}

// NewFileRequestLogger creates a file-based request logger rooted at logsDir.
func NewFileRequestLogger(enabled bool, logsDir string) *FileRequestLogger {
	return &FileRequestLogger{
		enabled: enabled,
		logsDir: logsDir,
	}
}

// IsEnabled reports whether request logging is active.
func (l *FileRequestLogger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// SetEnabled toggles request logging at runtime (config hot reload).
func (l *FileRequestLogger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// LogRequest writes one request/response exchange to a dedicated log file.
// Returns nil without writing when logging is disabled.
func (l *FileRequestLogger) LogRequest(url, method string, requestHeaders map[string][]string, body []byte, statusCode int, responseHeaders map[string][]string, response []byte, requestID string, requestTimestamp, responseTimestamp time.Time) error {
	if !l.IsEnabled() {
		return nil
	}

	if err := l.ensureLogsDir(); err != nil {
		return fmt.Errorf("request logger: failed to create logs directory: %w", err)
	}

	decompressed, decompressErr := l.decompressResponse(responseHeaders, response)
	if decompressErr != nil {
		log.WithError(decompressErr).Warn("request logger: failed to decompress response, logging raw bytes")
		decompressed = response
	}

	filename := filepath.Join(l.logsDir, l.generateFilename(url, requestID))
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("request logger: failed to create log file: %w", err)
	}
	defer func() {
		if errClose := f.Close(); errClose != nil {
			log.WithError(errClose).Warn("request logger: failed to close log file")
		}
	}()

	if requestTimestamp.IsZero() {
		requestTimestamp = time.Now()
	}

	var content strings.Builder
	content.WriteString("=== REQUEST INFO ===\n")
	content.WriteString(fmt.Sprintf("Version: %s\n", buildinfo.Version))
	content.WriteString(fmt.Sprintf("URL: %s\n", url))
	content.WriteString(fmt.Sprintf("Method: %s\n", method))
	content.WriteString(fmt.Sprintf("Timestamp: %s\n\n", requestTimestamp.Format(time.RFC3339Nano)))

	content.WriteString("=== HEADERS ===\n")
	for key, values := range requestHeaders {
		for _, value := range values {
			if strings.EqualFold(key, "authorization") {
				value = util.MaskAuthorizationHeader(value)
			}
			content.WriteString(fmt.Sprintf("%s: %s\n", key, value))
		}
	}
	content.WriteString("\n")

	content.WriteString("=== REQUEST BODY ===\n")
	content.WriteString(util.MaskSensitiveQuery(string(body)))
	content.WriteString("\n\n")

	content.WriteString("=== RESPONSE ===\n")
	content.WriteString(fmt.Sprintf("Status: %d\n", statusCode))
	if !responseTimestamp.IsZero() {
		content.WriteString(fmt.Sprintf("Timestamp: %s\n", responseTimestamp.Format(time.RFC3339Nano)))
	}
	for key, values := range responseHeaders {
		for _, value := range values {
			content.WriteString(fmt.Sprintf("%s: %s\n", key, value))
		}
	}
	content.WriteString("\n")
	content.Write(decompressed)
	content.WriteString("\n")

	if _, err = io.WriteString(f, content.String()); err != nil {
		return fmt.Errorf("request logger: failed to write log file: %w", err)
	}
	return nil
}

// ensureLogsDir creates the logs directory if it doesn't exist.
func (l *FileRequestLogger) ensureLogsDir() error {
	if _, err := os.Stat(l.logsDir); os.IsNotExist(err) {
		return os.MkdirAll(l.logsDir, 0o755)
	}
	return nil
}

// generateFilename creates a sanitized filename from the URL path and current timestamp.
// Format: orders-regular-2026-08-21T195811-a1b2c3d4.log
func (l *FileRequestLogger) generateFilename(url, requestID string) string {
	path := url
	if strings.Contains(url, "?") {
		path = strings.Split(url, "?")[0]
	}
	if idx := strings.Index(path, "://"); idx >= 0 {
		path = path[idx+3:]
		if slash := strings.Index(path, "/"); slash >= 0 {
			path = path[slash:]
		} else {
			path = ""
		}
	}
	path = strings.TrimPrefix(path, "/")

	sanitized := l.sanitizeForFilename(path)
	timestamp := time.Now().Format("2006-01-02T150405")

	idPart := requestID
	if idPart == "" {
		idPart = fmt.Sprintf("%d", requestLogID.Add(1))
	}

	return fmt.Sprintf("%s-%s-%s.log", sanitized, timestamp, idPart)
}

// sanitizeForFilename replaces characters that are not safe for filenames.
func (l *FileRequestLogger) sanitizeForFilename(path string) string {
	sanitized := strings.ReplaceAll(path, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, ":", "-")

	reg := regexp.MustCompile(`[<>:"|?*\s]`)
	sanitized = reg.ReplaceAllString(sanitized, "-")

	reg = regexp.MustCompile(`-+`)
	sanitized = reg.ReplaceAllString(sanitized, "-")

	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		sanitized = "root"
	}
	return sanitized
}

// decompressResponse expands the response body according to its
// Content-Encoding header so log files stay readable.
func (l *FileRequestLogger) decompressResponse(responseHeaders map[string][]string, response []byte) ([]byte, error) {
	if responseHeaders == nil || len(response) == 0 {
		return response, nil
	}

	var contentEncoding string
	for key, values := range responseHeaders {
		if strings.ToLower(key) == "content-encoding" && len(values) > 0 {
			contentEncoding = strings.ToLower(values[0])
			break
		}
	}

	switch contentEncoding {
	case "gzip":
		return l.decompressGzip(response)
	case "deflate":
		return l.decompressDeflate(response)
	case "br":
		return l.decompressBrotli(response)
	case "zstd":
		return l.decompressZstd(response)
	default:
		// No compression or unsupported compression
		return response, nil
	}
}

func (l *FileRequestLogger) decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() {
		if errClose := reader.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close gzip reader in request logger")
		}
	}()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress gzip data: %w", err)
	}
	return decompressed, nil
}

func (l *FileRequestLogger) decompressDeflate(data []byte) ([]byte, error) {
	reader := flate.NewReader(bytes.NewReader(data))
	defer func() {
		if errClose := reader.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close deflate reader in request logger")
		}
	}()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress deflate data: %w", err)
	}
	return decompressed, nil
}

func (l *FileRequestLogger) decompressBrotli(data []byte) ([]byte, error) {
	reader := brotli.NewReader(bytes.NewReader(data))

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress brotli data: %w", err)
	}
	return decompressed, nil
}

func (l *FileRequestLogger) decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer decoder.Close()

	decompressed, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zstd data: %w", err)
	}
	return decompressed, nil
}
