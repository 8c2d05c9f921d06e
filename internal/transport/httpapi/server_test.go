package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	logx "todoreminder/pkg/logx"
)

func waitForHTTP(ctx context.Context, url string) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		reqCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
		if err != nil {
			cancel()
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		cancel()
		if err == nil {
			_ = resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func TestServerReconfigureEnableDisable(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := NewServer(Config{}, api, logx.Nop())
	t.Cleanup(func() { srv.Stop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})
	select {
	case <-srv.Ready():
	case <-ctx.Done():
		t.Fatal("listener never came up")
	}
	addr := srv.Addr()
	if addr == "" {
		t.Fatal("no bound address")
	}
	if err := waitForHTTP(ctx, "http://"+addr+"/health"); err != nil {
		t.Fatalf("health: %v", err)
	}

	srv.Reconfigure(ctx, Config{Enabled: false})
	if srv.Supervisor() != nil {
		t.Fatal("supervisor still set after disable")
	}
	if srv.Addr() != "" {
		t.Fatal("address still reported after disable")
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err == nil {
		_ = resp.Body.Close()
		t.Fatal("server still answering after disable")
	}
}

type countingInst struct{ seen int }

func (c *countingInst) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.seen++
		next.ServeHTTP(w, r)
	})
}

func (c *countingInst) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("metrics")) })
}

func TestHandlerMountsMetrics(t *testing.T) {
	t.Parallel()
	api, _ := newTestAPI(t)
	inst := &countingInst{}
	srv := NewServer(Config{}, api, logx.Nop(), WithInstrumentation(inst))

	if rec := do(t, srv.Handler(Config{Metrics: true}), http.MethodGet, "/metrics", nil); rec.Code != http.StatusOK || rec.Body.String() != "metrics" {
		t.Fatalf("metrics status = %d body=%q", rec.Code, rec.Body)
	}
	if rec := do(t, srv.Handler(Config{}), http.MethodGet, "/metrics", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics without flag status = %d", rec.Code)
	}
	if inst.seen != 2 {
		t.Fatalf("middleware saw %d requests", inst.seen)
	}
}

func TestServerStartIsIdempotent(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := NewServer(Config{Enabled: true, Addr: "127.0.0.1:0"}, api, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.Start(ctx)
	first := srv.Supervisor()
	srv.Start(ctx)
	if srv.Supervisor() != first {
		t.Fatal("second Start replaced the supervisor")
	}
	<-srv.Ready()
	srv.Stop(ctx)
	srv.Stop(ctx)
	if srv.Supervisor() != nil {
		t.Fatal("supervisor still set after Stop")
	}
}
