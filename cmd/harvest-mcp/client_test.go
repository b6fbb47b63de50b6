package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/use-agent/harvest/models"
)

// fakeAPI serves the batch endpoints with scripted states.
type fakeAPI struct {
	mu      sync.Mutex
	started []models.StartRequest
	states  []string // returned by successive status polls; the last repeats
	keys    []string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/batches", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.keys = append(f.keys, r.Header.Get("X-API-Key"))
		var req models.StartRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Mode == "dns" && req.Options.Performance {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(models.StartResponse{Error: &models.ErrorDetail{
				Code: models.ErrCodeMissingCredential, Message: "no PageSpeed key"}})
			return
		}
		f.started = append(f.started, req)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(models.StartResponse{Success: true, BatchID: "b-1"})
	})
	mux.HandleFunc("GET /api/v1/batches/current", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		state := f.states[0]
		if len(f.states) > 1 {
			f.states = f.states[1:]
		}
		f.mu.Unlock()
		st := models.BatchStatusResponse{BatchID: "b-1", Mode: models.ModeFAQ, State: state, Targets: 2, Records: 7}
		if state == "completed" {
			st.OutputPath = "output/faq/faq_20260301_093005.csv"
		}
		_ = json.NewEncoder(w).Encode(st)
	})
	mux.HandleFunc("POST /api/v1/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(models.ControlResponse{Message: "no batch is running"})
	})
	mux.HandleFunc("POST /api/v1/captcha/continue", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.ControlResponse{Success: true, Message: "resuming"})
	})
	return mux
}

func newTestClient(t *testing.T, api *fakeAPI) *client {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	c := newClient(srv.URL+"/", "key-1")
	c.pollInterval = time.Millisecond
	return c
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func TestStartBatch_WaitsForCompletion(t *testing.T) {
	api := &fakeAPI{states: []string{"running", "waiting_captcha", "completed"}}
	c := newTestClient(t, api)

	res, err := c.handleStart(context.Background(), call(map[string]any{
		"mode":        "faq",
		"targets":     "go, rust",
		"related":     true,
		"max_records": float64(20),
		"wait":        true,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	text := resultText(t, res)
	for _, want := range []string{"b-1 (faq): completed", "Records: 7", "Output: output/faq/faq_20260301_093005.csv"} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}

	want := []models.StartRequest{{
		Mode:    "faq",
		Targets: "go, rust",
		Options: models.StartOptions{MaxRecords: 20, Related: true},
	}}
	if diff := cmp.Diff(want, api.started); diff != "" {
		t.Errorf("start payload mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"key-1"}, api.keys); diff != "" {
		t.Errorf("api keys mismatch (-want +got):\n%s", diff)
	}
}

func TestStartBatch_Rejected(t *testing.T) {
	c := newTestClient(t, &fakeAPI{states: []string{"idle"}})

	res, err := c.handleStart(context.Background(), call(map[string]any{
		"mode": "dns", "targets": "example.com", "performance": true,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected a tool error")
	}
	if got := resultText(t, res); !strings.Contains(got, "MISSING_CREDENTIAL") {
		t.Errorf("error = %q, want the error code", got)
	}
}

func TestStartBatch_MissingArguments(t *testing.T) {
	c := newTestClient(t, &fakeAPI{states: []string{"idle"}})
	res, _ := c.handleStart(context.Background(), call(map[string]any{"mode": "maps"}))
	if !res.IsError {
		t.Error("expected an error without targets")
	}
}

func TestControls(t *testing.T) {
	c := newTestClient(t, &fakeAPI{states: []string{"idle"}})

	res, _ := c.handleStop(context.Background(), call(nil))
	if !res.IsError || resultText(t, res) != "no batch is running" {
		t.Errorf("stop = %+v", res)
	}
	res, _ = c.handleConfirm(context.Background(), call(nil))
	if res.IsError || resultText(t, res) != "resuming" {
		t.Errorf("confirm = %+v", res)
	}
	res, _ = c.handleStatus(context.Background(), call(nil))
	if got := resultText(t, res); got != "No batch has run yet." {
		t.Errorf("status = %q", got)
	}
}
