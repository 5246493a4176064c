package logger

import (
	"io"
	"log/slog"
)

// New は実行用の slog.Logger を生成します。
// verbose の場合は Debug レベル、jsonFormat の場合は JSON 形式で出力します。
func New(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Key = "timestamp"
				}
				if a.Key == slog.MessageKey {
					a.Key = "message"
				}
				return a
			},
		})
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Init は New で生成したロガーをデフォルトとして設定し、それを返します。
func Init(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	l := New(w, verbose, jsonFormat)
	slog.SetDefault(l)
	return l
}
