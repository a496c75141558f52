package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	if sm := NewShutdownManager(NopLogger(), nil, 0); sm.shutdownTimeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", sm.shutdownTimeout)
	}
	if sm := NewShutdownManager(NopLogger(), nil, time.Second); sm.shutdownTimeout != time.Second {
		t.Errorf("Expected timeout 1s, got %v", sm.shutdownTimeout)
	}
}

func TestShutdown_ReverseOrder(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"database", "redis", "audit"} {
		name := name
		sm.RegisterShutdownFunc(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := strings.Join(order, ","); got != "audit,redis,database" {
		t.Errorf("Expected reverse registration order, got %s", got)
	}
}

func TestShutdown_CollectsErrors(t *testing.T) {
	var buf bytes.Buffer
	sm := NewShutdownManager(NewLogger(InfoLevel, &buf), nil, time.Second)

	ran := false
	sm.RegisterShutdownFunc("database", func(context.Context) error {
		ran = true
		return nil
	})
	sm.RegisterShutdownFunc("redis", func(context.Context) error { return errors.New("connection reset") })

	err := sm.Shutdown()
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !strings.Contains(err.Error(), "redis: connection reset") {
		t.Errorf("Expected the component name in the error, got %v", err)
	}
	if !ran {
		t.Error("A failing function must not stop the remaining ones")
	}
	if !strings.Contains(buf.String(), "Shutdown function failed") {
		t.Errorf("Expected failure to be logged, got %s", buf.String())
	}
}

func TestShutdown_Timeout(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, 50*time.Millisecond)

	later := false
	sm.RegisterShutdownFunc("never-reached", func(context.Context) error {
		later = true
		return nil
	})
	sm.RegisterShutdownFunc("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := sm.Shutdown()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if later {
		t.Error("Functions after the deadline should be skipped")
	}
	if !strings.Contains(err.Error(), "shutdown timeout reached before never-reached") {
		t.Errorf("Expected skipped component in error, got %v", err)
	}
}

func TestShutdown_DrainsServer(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewUnstartedServer(handler)
	srv.Start()
	defer srv.Close()

	sm := NewShutdownManager(NopLogger(), srv.Config, 5*time.Second)

	status := make(chan int, 1)
	go func() {
		resp, err := http.Get(srv.URL)
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()
	<-started

	done := make(chan error, 1)
	go func() { done <- sm.Shutdown() }()

	time.Sleep(50 * time.Millisecond)
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if code := <-status; code != http.StatusNoContent {
		t.Errorf("Expected in-flight request to complete, got %d", code)
	}
}

func TestWaitForShutdown(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, time.Second)

	called := make(chan struct{})
	sm.RegisterShutdownFunc("otel", func(context.Context) error {
		close(called)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sm.WaitForShutdown(ctx) }()

	select {
	case <-called:
		t.Fatal("Shutdown ran before the context was canceled")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	<-called
}
