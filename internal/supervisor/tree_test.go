package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type flakyService struct {
	runs atomic.Int32
}

func (f *flakyService) String() string { return "flaky" }

func (f *flakyService) Serve(ctx context.Context) error {
	if f.runs.Add(1) == 1 {
		return errors.New("first run fails")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTree_RestartsFailedService(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tree := NewTree(zap.New(core), TreeConfig{FailureBackoff: 10 * time.Millisecond})

	svc := &flakyService{}
	tree.AddBackground(svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for svc.runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if svc.runs.Load() < 2 {
		t.Fatalf("service ran %d times, want restart", svc.runs.Load())
	}
	if logs.FilterLevelExact(zapcore.WarnLevel).Len() == 0 {
		t.Error("expected a warn line for the terminated service")
	}
}

type panicService struct{ runs atomic.Int32 }

func (p *panicService) String() string { return "panicky" }

func (p *panicService) Serve(ctx context.Context) error {
	if p.runs.Add(1) == 1 {
		panic("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTree_LogsPanics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tree := NewTree(zap.New(core), TreeConfig{})
	svc := &panicService{}
	tree.AddBackground(svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for svc.runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if logs.FilterMessage("Supervised service panicked").Len() != 1 {
		t.Errorf("expected one panic log line, got %d", logs.FilterMessage("Supervised service panicked").Len())
	}
}

type fakeServer struct {
	stop      chan struct{}
	shutdown  atomic.Bool
	listenErr error
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdown.Store(true)
	close(f.stop)
	return nil
}

func TestHTTPService_GracefulShutdown(t *testing.T) {
	srv := &fakeServer{stop: make(chan struct{})}
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !srv.shutdown.Load() {
		t.Error("expected Shutdown to be called")
	}
}

func TestHTTPService_ListenError(t *testing.T) {
	srv := &fakeServer{stop: make(chan struct{}), listenErr: errors.New("address in use")}
	err := NewHTTPService(srv, 0).Serve(context.Background())
	if err == nil {
		t.Fatal("expected listen error")
	}
}
