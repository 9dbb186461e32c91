package handlers

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"

	"golang.org/x/time/rate"
)

// chunkSize is the largest write that passes through the rate limiter in one
// step. 32 KiB keeps throttling accurate without syscall churn.
const chunkSize = 32 * 1024

// Throttle returns a middleware enforcing a server-wide download cap in
// bytes per second. Imaging files run to gigabytes, so an uncapped dashboard
// on a shared lab link can starve everything else. The cap is one token
// bucket shared by every handler the middleware wraps; wrapping five routes
// must not hand out five buckets. A cap of 0 disables throttling.
func Throttle(bytesPerSec float64) func(http.Handler) http.Handler {
	if bytesPerSec == 0 {
		return func(h http.Handler) http.Handler { return h }
	}
	limiter := rate.NewLimiter(rate.Limit(bytesPerSec), chunkSize)
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeHTTP(&throttledWriter{
				ResponseWriter: w,
				ctx:            r.Context(),
				limiter:        limiter,
			}, r)
		})
	}
}

// throttledWriter gates Write calls through a shared token bucket.
type throttledWriter struct {
	http.ResponseWriter
	ctx     context.Context
	limiter *rate.Limiter
}

func (tw *throttledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		select {
		case <-tw.ctx.Done():
			return total, tw.ctx.Err()
		default:
		}

		n := len(p)
		if n > chunkSize {
			n = chunkSize
		}
		if err := tw.limiter.WaitN(tw.ctx, n); err != nil {
			return total, err
		}
		written, err := tw.ResponseWriter.Write(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}

// ReadFrom keeps io.Copy (used by http.ServeContent and zip.Writer) on our
// throttled Write path instead of the fast ReadFrom shortcut.
func (tw *throttledWriter) ReadFrom(src io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := tw.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, werr
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}

// Unwrap lets http.ResponseController reach the underlying ResponseWriter.
func (tw *throttledWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}

// clientIP extracts the remote IP from the request, stripping the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// formatSize formats a byte count as a human-readable string.
func formatSize(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
