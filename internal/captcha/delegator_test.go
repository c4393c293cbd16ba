package captcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flightscout/orchestrator/internal/browseraction"
	"github.com/flightscout/orchestrator/types"
)

type fakePage struct {
	executed []types.Action
}

func (f *fakePage) Screenshot(ctx context.Context) ([]byte, string, error) {
	return []byte("shot"), "https://example.com", nil
}

func (f *fakePage) Execute(ctx context.Context, act types.Action) browseraction.ActionResult {
	f.executed = append(f.executed, act)
	return browseraction.ActionResult{OK: true}
}

func TestDelegator_Solve_SidecarUnreachableReturnsFalseImmediately(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.SidecarURL = "http://127.0.0.1:1" // nothing listening
	d := New(cfg, nil, nil, nil)

	page := &fakePage{}
	solved := d.Solve(context.Background(), 1, page, 1440, 900, "https://example.com", nil)
	if solved {
		t.Fatal("expected false when sidecar is unreachable")
	}
	if len(page.executed) != 0 {
		t.Fatalf("expected no actions executed, got %d", len(page.executed))
	}
}

func TestDelegator_Solve_SidecarCompletesOnFirstSolveCall(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/strategy", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(strategyResponse{Plan: map[string]any{"approach": "click_checkbox"}})
	})
	mux.HandleFunc("/solve", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(solveResponse{Success: true, Complete: true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.SidecarURL = srv.URL
	var events []string
	d := New(cfg, nil, nil, nil)

	page := &fakePage{}
	solved := d.Solve(context.Background(), 1, page, 1440, 900, "https://example.com", func(kind string, payload map[string]any) {
		events = append(events, kind)
	})
	if !solved {
		t.Fatal("expected solved=true")
	}
	found := false
	for _, e := range events {
		if e == "strategy_ready" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a strategy_ready event, got %v", events)
	}
}

func TestDelegator_Solve_IterationCapExhaustedReturnsFalse(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/strategy", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(strategyResponse{})
	})
	mux.HandleFunc("/solve", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(solveResponse{Success: true, Complete: false, Actions: []types.Action{{Kind: types.ActionClick, X: 500, Y: 500}}})
	})
	mux.HandleFunc("/assess", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(assessResponse{Complete: false})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.SidecarURL = srv.URL
	cfg.MaxIterations = 2
	d := New(cfg, nil, nil, nil)

	page := &fakePage{}
	solved := d.Solve(context.Background(), 1, page, 1440, 900, "https://example.com", nil)
	if solved {
		t.Fatal("expected false after exhausting the iteration cap")
	}
	if len(page.executed) != 2 {
		t.Fatalf("expected exactly 2 executed actions (one per iteration), got %d", len(page.executed))
	}
}

func TestDelegator_Solve_Human_ResolvesOnSignal(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Mode = ModeHuman
	cfg.HumanSolveTimeout = 2 * time.Second
	signaler := NewSignaler()
	d := New(cfg, signaler, nil, nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		signaler.NotifySolved(7)
	}()

	var sawDetected bool
	solved := d.Solve(context.Background(), 7, &fakePage{}, 1440, 900, "https://example.com", func(kind string, payload map[string]any) {
		if kind == "captcha_detected" {
			sawDetected = true
		}
	})
	if !solved {
		t.Fatal("expected solved=true after signal")
	}
	if !sawDetected {
		t.Fatal("expected a captcha_detected event")
	}
}

func TestDelegator_Solve_Human_TimesOut(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Mode = ModeHuman
	cfg.HumanSolveTimeout = 100 * time.Millisecond
	d := New(cfg, NewSignaler(), nil, nil)

	solved := d.Solve(context.Background(), 9, &fakePage{}, 1440, 900, "https://example.com", nil)
	if solved {
		t.Fatal("expected false on timeout")
	}
}
