// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger for the adherence
// API. Requests routinely carry patient identity (the X-Patient-ID and
// X-Caregiver-ID demo headers, medication ids in paths, intake record ids in
// status updates), so the logger scrubs identifying values from request
// metadata before anything reaches the log stream.
//
// Behavior:
//   - Never logs request or response bodies
//   - Fully masks identity and credential headers (the patient and caregiver
//     headers, Authorization, Cookie, Set-Cookie, plus any configured extras)
//   - Rewrites emails, phone numbers, and UUID-shaped ids found in query
//     strings and remaining header values
//
// Masking the headers here is a backstop, not a license to put identifiers
// in query strings; handlers read identity from headers or context only.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures extra scrub behavior for RedactingLogger.
//
// MaskHeaders lists additional HTTP header names whose values are replaced
// with "[REDACTED]" wholesale. Matching is case-insensitive; the list is
// merged with the built-in set (patient and caregiver identity headers,
// "Authorization", "Cookie", "Set-Cookie").
type RedactOptions struct {
	MaskHeaders []string
}

// RedactingLogger returns a Gin middleware that logs each request with
// identifying values scrubbed.
//
// It logs method, path, query string, status, response size, latency, and
// request headers after masking. Severity follows the response: INFO for
// success, WARN for 4xx, ERROR for 5xx.
//
// NOTE: UUIDs are redacted *before* phone numbers so the phone pattern
// cannot latch onto the digit/hyphen segments of a UUID (medication and
// task ids are UUIDs).
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	// Compile regex patterns once.
	uuidRE := regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE := regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits-only phone pattern (prevents matching hex characters from UUIDs).
	// Examples matched: "+34 612 34 56 78", "(212) 555-1212".
	phoneRE := regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)

	redact := func(s string) string {
		if s == "" {
			return s
		}
		out := s
		// Order matters: IDs → email → phone (phone is the loosest).
		out = uuidRE.ReplaceAllString(out, "[REDACTED:id]")
		out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
		out = phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
		return out
	}

	// Header mask set (case-insensitive). Identity headers are built in so a
	// caller forgetting to configure them cannot leak patient ids.
	maskHeaders := map[string]struct{}{
		"x-patient-id":   {},
		"x-caregiver-id": {},
		"authorization":  {},
		"cookie":         {},
		"set-cookie":     {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		// Request path and query.
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		rawQuery := c.Request.URL.RawQuery
		safeQuery := redact(rawQuery)

		// Scrub headers.
		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			keyLower := strings.ToLower(k)
			val := strings.Join(vv, ", ")
			if _, ok := maskHeaders[keyLower]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(val)
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		size := c.Writer.Size()

		reqID := c.Writer.Header().Get("X-Request-ID")
		if reqID == "" {
			reqID = c.GetHeader("X-Request-ID")
		}

		// Severity based on status.
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}

		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Int("status", status).
			Int("bytes", size).
			Dur("latency", latency).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
