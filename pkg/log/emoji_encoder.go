package log

import (
	"sync"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// emojiMap maps the "type" field of an entry to its console prefix.
var (
	emojiMu  sync.RWMutex
	emojiMap = map[string]string{
		"request":      "🌐",
		"slow_request": "🐌",
		"startup":      "🚀",
		"scheduler":    "🎯",
		"scrape":       "🕸️",
		"breaker":      "🔌",
		"fallback":     "🛟",
		"cache":        "📦",
		"history":      "💾",
		"success":      "✅",
	}
)

// fallbackEmoji marks degraded snapshots by reason.
var fallbackEmoji = map[string]string{
	"cache":   "🟡",
	"history": "🟠",
	"static":  "🔴",
}

func statusEmoji(status int64) string {
	switch {
	case status >= 500:
		return "🔴"
	case status >= 400:
		return "🟠"
	case status >= 300:
		return "🟡"
	default:
		return "🟢"
	}
}

func levelEmoji(level zapcore.Level) string {
	switch level {
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return "❌"
	case zapcore.WarnLevel:
		return "⚠️"
	case zapcore.DebugLevel:
		return "🐛"
	default:
		return "ℹ️"
	}
}

// EmojiConsoleEncoder wraps the zap console encoder and prefixes messages with an emoji.
//
// Priority: HTTP status, then fallback_reason, then type, then level.
type EmojiConsoleEncoder struct {
	zapcore.Encoder
}

// NewEmojiConsoleEncoder creates the console encoder used in development.
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

// EncodeEntry implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	var logType, reason string
	var status int64

	for _, f := range fields {
		switch {
		case f.Key == "type" && f.Type == zapcore.StringType:
			logType = f.String
		case f.Key == "fallback_reason" && f.Type == zapcore.StringType:
			reason = f.String
		case f.Key == "status" && (f.Type == zapcore.Int64Type || f.Type == zapcore.Int32Type):
			status = f.Integer
		}
	}

	emoji := ""
	switch {
	case status > 0:
		emoji = statusEmoji(status)
	case reason != "":
		emoji = fallbackEmoji[reason]
	case logType != "":
		emojiMu.RLock()
		emoji = emojiMap[logType]
		emojiMu.RUnlock()
	}
	if emoji == "" {
		emoji = levelEmoji(entry.Level)
	}

	entry.Message = emoji + " " + entry.Message
	return enc.Encoder.EncodeEntry(entry, fields)
}

// Clone implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: enc.Encoder.Clone()}
}

// AddEmojiToMap registers a prefix for a custom log type.
func AddEmojiToMap(logType, emoji string) {
	emojiMu.Lock()
	defer emojiMu.Unlock()
	emojiMap[logType] = emoji
}
