package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func payloadHandler(n int) http.Handler {
	body := bytes.Repeat([]byte("x"), n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	})
}

func serveTimed(t *testing.T, h http.Handler, wantLen int) time.Duration {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	start := time.Now()
	h.ServeHTTP(w, r)
	elapsed := time.Since(start)
	if w.Body.Len() != wantLen {
		t.Fatalf("served %d bytes, want %d", w.Body.Len(), wantLen)
	}
	return elapsed
}

func TestThrottleDisabled(t *testing.T) {
	h := Throttle(0)(payloadHandler(chunkSize))
	if elapsed := serveTimed(t, h, chunkSize); elapsed > time.Second {
		t.Errorf("uncapped serve took %v", elapsed)
	}
}

// Two routes wrapped by the same Throttle middleware draw from one token
// bucket: after the first response drains the burst, the second must wait
// for refill instead of bursting a fresh bucket of its own.
func TestThrottleSharedAcrossHandlers(t *testing.T) {
	throttle := Throttle(float64(chunkSize)) // refill one burst per second
	a := throttle(payloadHandler(chunkSize))
	b := throttle(payloadHandler(chunkSize))

	if elapsed := serveTimed(t, a, chunkSize); elapsed > 500*time.Millisecond {
		t.Fatalf("first response should ride the initial burst, took %v", elapsed)
	}
	if elapsed := serveTimed(t, b, chunkSize); elapsed < 500*time.Millisecond {
		t.Errorf("second route served %d bytes in %v; buckets are not shared", chunkSize, elapsed)
	}
}

func TestThrottleCapsSingleResponse(t *testing.T) {
	h := Throttle(float64(chunkSize))(payloadHandler(2 * chunkSize))
	if elapsed := serveTimed(t, h, 2*chunkSize); elapsed < 500*time.Millisecond {
		t.Errorf("two chunks under a one-chunk-per-second cap took only %v", elapsed)
	}
}
