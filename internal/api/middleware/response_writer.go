// Package middleware provides Gin HTTP middleware for the KiteMCP server.
// It includes a response writer wrapper that captures response data for the
// request log without delaying the bytes sent to the client.
package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/router-for-me/KiteMCP/internal/logging"
)

// RequestInfo holds essential details of an incoming HTTP request for logging purposes.
type RequestInfo struct {
	URL       string              // URL is the request URL with sensitive query values masked.
	Method    string              // Method is the HTTP method (e.g., GET, POST).
	Headers   map[string][]string // Headers contains the request headers.
	Body      []byte              // Body is the raw request body.
	RequestID string              // RequestID is the unique identifier for the request.
	Timestamp time.Time           // Timestamp is when the request was received.
}

// ResponseWriterWrapper wraps gin.ResponseWriter to intercept response data.
// The client write always happens first; capture is a side effect.
type ResponseWriterWrapper struct {
	gin.ResponseWriter
	body        *bytes.Buffer
	logger      logging.RequestLogger
	requestInfo *RequestInfo
	statusCode  int
	headers     map[string][]string
}

// NewResponseWriterWrapper creates a wrapper around the original writer that
// buffers the response for the given logger.
func NewResponseWriterWrapper(w gin.ResponseWriter, logger logging.RequestLogger, requestInfo *RequestInfo) *ResponseWriterWrapper {
	return &ResponseWriterWrapper{
		ResponseWriter: w,
		body:           &bytes.Buffer{},
		logger:         logger,
		requestInfo:    requestInfo,
		headers:        make(map[string][]string),
	}
}

// Write passes data through to the client and buffers a copy for the log.
// Headers are refreshed first because Write may trigger WriteHeader itself.
func (w *ResponseWriterWrapper) Write(data []byte) (int, error) {
	w.captureCurrentHeaders()

	n, err := w.ResponseWriter.Write(data)
	w.body.Write(data)
	return n, err
}

// WriteString mirrors Write for handlers that go through io.StringWriter;
// without this override those writes would be missing from request logs.
func (w *ResponseWriterWrapper) WriteString(data string) (int, error) {
	w.captureCurrentHeaders()

	n, err := w.ResponseWriter.WriteString(data)
	w.body.WriteString(data)
	return n, err
}

// WriteHeader records the status code and the headers set so far, then
// delegates to the underlying writer.
func (w *ResponseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.captureCurrentHeaders()
	w.ResponseWriter.WriteHeader(statusCode)
}

// captureCurrentHeaders copies the current response headers into the wrapper.
// Values are cloned so later mutations by the handler cannot race the log.
func (w *ResponseWriterWrapper) captureCurrentHeaders() {
	if w.headers == nil {
		w.headers = make(map[string][]string)
	}
	for key, values := range w.ResponseWriter.Header() {
		headerValues := make([]string, len(values))
		copy(headerValues, values)
		w.headers[key] = headerValues
	}
}

// Finalize writes the captured exchange to the request logger. It is called
// after the handler chain completes.
func (w *ResponseWriterWrapper) Finalize() error {
	if w.logger == nil || !w.logger.IsEnabled() || w.requestInfo == nil {
		return nil
	}

	finalStatusCode := w.statusCode
	if finalStatusCode == 0 {
		if statusWriter, ok := w.ResponseWriter.(interface{ Status() int }); ok {
			finalStatusCode = statusWriter.Status()
		} else {
			finalStatusCode = http.StatusOK
		}
	}

	return w.logger.LogRequest(
		w.requestInfo.URL,
		w.requestInfo.Method,
		w.requestInfo.Headers,
		w.requestInfo.Body,
		finalStatusCode,
		w.cloneHeaders(),
		w.body.Bytes(),
		w.requestInfo.RequestID,
		w.requestInfo.Timestamp,
		time.Now(),
	)
}

func (w *ResponseWriterWrapper) cloneHeaders() map[string][]string {
	w.captureCurrentHeaders()

	finalHeaders := make(map[string][]string, len(w.headers))
	for key, values := range w.headers {
		headerValues := make([]string, len(values))
		copy(headerValues, values)
		finalHeaders[key] = headerValues
	}
	return finalHeaders
}
