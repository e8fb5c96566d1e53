package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper extends log.Helper with typed entries.
// Each method adds a "type" field that the emoji console encoder maps to a prefix.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper wraps logger.
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{Helper: log.NewHelper(logger)}
}

func typed(logType, msg string, kvs []interface{}) []interface{} {
	out := make([]interface{}, 0, len(kvs)+4)
	out = append(out, "msg", msg)
	out = append(out, kvs...)
	return append(out, "type", logType)
}

// Startup 🚀
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(typed("startup", msg, kvs)...)
}

// Scheduler 🎯
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.Infow(typed("scheduler", msg, kvs)...)
}

// Scrape 🕸️ logs one scrape outcome.
func (h *LogHelper) Scrape(source string, success bool, durationMs int64, kvs ...interface{}) {
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	msg := fmt.Sprintf("scrape %s %s (%dms)", source, outcome, durationMs)
	kvs = append(kvs, "source", source, "success", success, "duration_ms", durationMs)
	if success {
		h.Infow(typed("scrape", msg, kvs)...)
		return
	}
	h.Warnw(typed("scrape", msg, kvs)...)
}

// Breaker 🔌
func (h *LogHelper) Breaker(msg string, kvs ...interface{}) {
	h.Warnw(typed("breaker", msg, kvs)...)
}

// Fallback logs a degraded snapshot; the emoji depends on the reason.
func (h *LogHelper) Fallback(source, reason string, kvs ...interface{}) {
	msg := fmt.Sprintf("serving %s rates from %s", source, reason)
	kvs = append(kvs, "source", source, "fallback_reason", reason)
	h.Warnw(typed("fallback", msg, kvs)...)
}

// Cache 📦
func (h *LogHelper) Cache(msg string, kvs ...interface{}) {
	h.Debugw(typed("cache", msg, kvs)...)
}

// History 💾
func (h *LogHelper) History(msg string, kvs ...interface{}) {
	h.Debugw(typed("history", msg, kvs)...)
}

// Success ✅
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(typed("success", msg, kvs)...)
}

// Request 🌐 logs a completed HTTP request. The status field picks the emoji.
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, url, status, durationMs)
	kvs = append(kvs, "method", method, "url", url, "status", status, "duration_ms", durationMs)
	h.Infow(typed("request", msg, kvs)...)
}

// SlowRequestThresholdMs is the latency above which RequestWithContext also logs a warning.
const SlowRequestThresholdMs = 1000

// RequestWithContext logs a request with the request id from ctx and flags slow requests.
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	requestID := GetRequestID(ctx)
	h.Request(method, url, status, durationMs, append(kvs, "request_id", requestID)...)

	if durationMs > SlowRequestThresholdMs {
		h.SlowRequest(ctx, method, url, durationMs, SlowRequestThresholdMs)
	}
}

// SlowRequest 🐌
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	requestID := GetRequestID(ctx)
	msg := fmt.Sprintf("[%s] slow request %s %s | %dms (threshold: %dms)", requestID, method, url, duration, threshold)
	kvs = append(kvs,
		"request_id", requestID,
		"method", method,
		"url", url,
		"duration_ms", duration,
		"threshold_ms", threshold,
	)
	h.Warnw(typed("slow_request", msg, kvs)...)
}
