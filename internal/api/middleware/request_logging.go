// Package middleware provides Gin HTTP middleware for the KiteMCP server.
// This file contains the request logging middleware that captures full
// request and response data when enabled through configuration.
package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiteMCP/internal/logging"
	"github.com/router-for-me/KiteMCP/internal/util"
)

// RequestLoggingMiddleware creates a Gin middleware that records HTTP
// exchanges through the provided RequestLogger. Only mutating requests are
// captured; GETs are status-probe traffic and would drown the log.
func RequestLoggingMiddleware(logger logging.RequestLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if logger == nil || !logger.IsEnabled() {
			c.Next()
			return
		}

		if c.Request == nil || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		if !shouldLogRequest(c.Request.URL.Path) {
			c.Next()
			return
		}

		requestInfo, err := captureRequestInfo(c)
		if err != nil {
			c.Next()
			return
		}

		wrapper := NewResponseWriterWrapper(c.Writer, logger, requestInfo)
		c.Writer = wrapper

		c.Next()

		if err = wrapper.Finalize(); err != nil {
			log.Warnf("request logging failed: %v", err)
		}
	}
}

// captureRequestInfo extracts URL, method, headers and body from the incoming
// request. The body is read and then restored so downstream handlers see it.
func captureRequestInfo(c *gin.Context) (*RequestInfo, error) {
	maskedQuery := util.MaskSensitiveQuery(c.Request.URL.RawQuery)
	url := c.Request.URL.Path
	if maskedQuery != "" {
		url += "?" + maskedQuery
	}

	headers := make(map[string][]string)
	for key, values := range c.Request.Header {
		headers[key] = values
	}

	var body []byte
	if c.Request.Body != nil {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, err
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		body = bodyBytes
	}

	return &RequestInfo{
		URL:       url,
		Method:    c.Request.Method,
		Headers:   headers,
		Body:      body,
		RequestID: logging.GetGinRequestID(c),
		Timestamp: time.Now(),
	}, nil
}

// shouldLogRequest determines whether the request should be logged.
// Management endpoints are skipped to keep credentials out of dump files.
func shouldLogRequest(path string) bool {
	return !strings.HasPrefix(path, "/v0/management")
}
