package health

import (
	"context"
	"net"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails once the goroutine count passes threshold. A
// steadily growing count is the usual symptom of a leaked consumer or
// handler.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when any recorded stop-the-world pause exceeds
// threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}

// TCPDialCheck fails when no TCP connection can be established to addr. Used
// for broker reachability, where no richer ping API is available.
func TCPDialCheck(addr string) CheckFunc {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return errors.Wrapf(err, "dial %s", addr)
		}
		return conn.Close()
	}
}
