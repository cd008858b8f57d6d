package control

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
)

// Listen reads one key per line from r and publishes Stop for q or Q. It
// returns when r is exhausted or ctx is done.
func Listen(ctx context.Context, r io.Reader, b *Broker, logger *slog.Logger) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		key := strings.TrimSpace(scanner.Text())
		switch key {
		case "":
		case "q", "Q":
			logger.Info("stop requested, exiting after the current generation")
			b.Publish(Stop)
		default:
			logger.Warn("invalid key", "key", key)
		}
	}
	return scanner.Err()
}

// Stopped reports whether a Stop is pending on ch without blocking
func Stopped(ch <-chan Command) bool {
	select {
	case cmd := <-ch:
		return cmd == Stop
	default:
		return false
	}
}
