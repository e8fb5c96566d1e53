// Package middleware provides Kratos middleware for the HTTP server.
package middleware

import (
	"context"
	"strings"

	pkglog "RateLane/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Logging returns a middleware that logs every request with its status and
// latency, tags it with a request id and flags slow requests.
//
// Example output:
//
//	🟢 GET /v1/rates/bcv - 200 (42ms) | {"type":"request","request_id":"mgrn0zfqda"}
//	🐌 [mgrn0zfqda] slow request GET /v1/rates/p2p | 13438ms (threshold: 1000ms)
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			var (
				method    string
				path      string
				operation string
				ip        string
				userAgent string
				requestID string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				operation = tr.Operation()
				method = tr.Kind().String()
				path = operation

				if ht, ok := tr.(http.Transporter); ok {
					r := ht.Request()
					method = r.Method
					path = r.URL.Path
					if r.URL.RawQuery != "" {
						path += "?" + r.URL.RawQuery
					}
					ip = clientIP(r)
					userAgent = r.Header.Get("User-Agent")
				}

				requestID = tr.RequestHeader().Get(RequestIDHeader)
				if requestID == "" {
					requestID = pkglog.GenerateRequestID()
				}
				tr.ReplyHeader().Set(RequestIDHeader, requestID)
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, operation)

			reply, err := handler(ctx, req)

			logger.RequestWithContext(ctx, method, path, statusOf(err), pkglog.GetElapsedTime(ctx),
				"operation", operation,
				"ip", ip,
				"user_agent", userAgent,
			)
			return reply, err
		}
	}
}

// clientIP prefers X-Real-IP, then the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}

func statusOf(err error) int {
	if err == nil {
		return 200
	}
	return int(errors.FromError(err).Code)
}
