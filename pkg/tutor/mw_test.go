package tutor

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

type testBaseWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newTestBaseWriter() *testBaseWriter {
	return &testBaseWriter{header: make(http.Header)}
}

func (w *testBaseWriter) Header() http.Header { return w.header }

func (w *testBaseWriter) WriteHeader(status int) {
	w.status = status
	w.wroteHeader = true
}

func (w *testBaseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(p)
}

type testFlusherWriter struct {
	*testBaseWriter
	flushed bool
}

func (w *testFlusherWriter) Flush() { w.flushed = true }

type testHijackerWriter struct {
	*testBaseWriter
	hijacked bool
}

func (w *testHijackerWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return nil, nil, nil
}

func TestAccessLogPreservesFlusher(t *testing.T) {
	t.Parallel()

	base := &testFlusherWriter{testBaseWriter: newTestBaseWriter()}
	handler := accessLogMiddleware(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer does not implement http.Flusher")
		}
		f.Flush()
	}))

	handler.ServeHTTP(base, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if !base.flushed {
		t.Fatal("Flush did not reach the underlying writer")
	}
}

func TestAccessLogPreservesHijacker(t *testing.T) {
	t.Parallel()

	base := &testHijackerWriter{testBaseWriter: newTestBaseWriter()}
	handler := accessLogMiddleware(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer does not implement http.Hijacker")
		}
		if _, _, err := hj.Hijack(); err != nil {
			t.Fatalf("Hijack: %v", err)
		}
	}))

	handler.ServeHTTP(base, httptest.NewRequest(http.MethodGet, "/ws/voice/sess_1", nil))
	if !base.hijacked {
		t.Fatal("Hijack did not reach the underlying writer")
	}
}

func TestAccessLogHijackWithoutSupportErrors(t *testing.T) {
	t.Parallel()

	handler := accessLogMiddleware(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := w.(http.Hijacker).Hijack(); err == nil {
			t.Fatal("expected Hijack on a plain writer to fail")
		}
	}))

	handler.ServeHTTP(newTestBaseWriter(), httptest.NewRequest(http.MethodGet, "/ws/voice/sess_1", nil))
}
