package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	// UUIDs are scrubbed before phone numbers: the phone pattern would
	// otherwise match their digit runs.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
	// tokenRE masks bearer tokens passed in the query (the WebSocket route).
	tokenRE = regexp.MustCompile(`(?i)(^|&)(token|access_token)=[^&]*`)
)

// RedactOptions lists extra header names to mask on top of Authorization,
// Cookie and Set-Cookie. Matching is case-insensitive.
type RedactOptions struct {
	MaskHeaders []string
}

// redact scrubs ids, emails and phone numbers from s.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func redactQuery(q string) string {
	q = tokenRE.ReplaceAllString(q, "${1}${2}=[REDACTED]")
	return redact(truncate(q, maxQueryLogLength))
}

// RedactingLogger writes one structured access log per request with the query
// and headers scrubbed, and attaches a request-scoped logger (request id,
// method, route) that handlers fetch with LoggerFrom and services with
// zerolog.Ctx. Bodies are never logged.
//
// Level: error for 5xx or recorded Gin errors, warn for 4xx, info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	mask := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			mask[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := mask[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = redact(strings.Join(vv, ", "))
		}

		reqLog := log.With().
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		setLogger(c, reqLog)

		c.Next()

		status := c.Writer.Status()
		ev := LoggerFrom(c).Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = LoggerFrom(c).Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = LoggerFrom(c).Warn()
		}

		ev.
			Str("query", redactQuery(c.Request.URL.RawQuery)).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
