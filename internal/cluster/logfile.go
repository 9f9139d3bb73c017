package cluster

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RankLogger returns a slog.Logger writing to a rotating per-rank log file
// under dir, named rank-<n>.log, so a multi-rank run sharing one machine's
// filesystem doesn't interleave every rank's diagnostic output into a single
// stream. The caller is expected to install it with slog.SetDefault once
// Rank() is known.
func RankLogger(dir string, rank int, level slog.Level) *slog.Logger {
	lj := &lumberjack.Logger{
		Filename:   filepath.Join(dir, fmt.Sprintf("rank-%d.log", rank)),
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		Compress:   true,
	}
	return slog.New(slog.NewTextHandler(lj, &slog.HandlerOptions{Level: level}))
}
