package logging

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// New 构建进程级 Logger
// verbose 时输出 Debug 级别 (包括 [cache] 命中轨迹)，否则只输出警告与错误
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard 返回一个什么都不输出的 Logger，测试与未注入时使用
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// LogOperation 统一的耗时操作日志
// 成功记 Debug，失败记 Error，与调用方的返回值无关
func LogOperation(ctx context.Context, logger *slog.Logger, op string, started time.Time, err error, attrs ...slog.Attr) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}

	all := append([]slog.Attr{
		slog.String("op", op),
		slog.Duration("dur", time.Since(started)),
		slog.String("err", errToString(err)),
	}, attrs...)

	logger.LogAttrs(ctx, level, "operation", all...)
}

func errToString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
