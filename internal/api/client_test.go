package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/errs"
	"github.com/vaultlink/vaultlink/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.NewConfig()
	cfg.Server.Address = srv.URL
	cfg.Proxy.Mode = "no-proxy"

	client, err := NewClient(cfg, WithRetry(2, time.Millisecond, 5*time.Millisecond))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func writeEnvelope(w http.ResponseWriter, data interface{}) {
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(models.Envelope{Status: "success", Data: raw})
}

func TestNewClientRejectsEmptyAddress(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Server.Address = ""

	_, err := NewClient(cfg)
	if err == nil {
		t.Fatal("NewClient() should return error for empty address")
	}
	if !strings.Contains(err.Error(), "server address is empty") {
		t.Errorf("NewClient() error = %q, want error containing 'server address is empty'", err.Error())
	}
}

func TestNewClientTrimsTrailingSlash(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Server.Address = "https://vault.example.com/"

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.BaseURL() != "https://vault.example.com" {
		t.Errorf("BaseURL() = %q", client.BaseURL())
	}
}

func TestListFiles(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/list" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("username"); got != "alice" {
			t.Errorf("username = %q, want alice", got)
		}
		writeEnvelope(w, models.FileListData{FilesInfo: []models.FileRecord{
			{ID: "f1", Name: "a.txt", SizeRaw: "0000000A", Status: models.StatusActive},
			{ID: "f2", Name: "b.png", SizeRaw: "00000014", Status: models.StatusDeleted},
		}})
	}))

	records, err := client.ListFiles(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(records) != 2 || records[0].ID != "f1" || records[1].Status != models.StatusDeleted {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestListFilesEmptyData(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","data":{}}`)
	}))

	records, err := client.ListFiles(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", records)
	}
}

func TestEnvelopeError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.Envelope{Status: "error", ErrorCode: 1003, ErrorMessage: "user not registered"})
	}))

	_, err := client.ListFiles(context.Background(), "mallory")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != 1003 || apiErr.Message != "user not registered" {
		t.Errorf("unexpected error fields: %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "list files failed") {
		t.Errorf("error should name the operation: %v", err)
	}
}

func TestNotFoundStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such file", http.StatusNotFound)
	}))

	_, err := client.FileDetail(context.Background(), "missing")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeEnvelope(w, models.FileListData{})
	}))

	if _, err := client.ListFiles(context.Background(), "alice"); err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusBadGateway)
	}))

	_, err := client.ListFiles(context.Background(), "alice")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 APIError, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 1 call + 2 retries, got %d", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))

	if err := client.DeleteFile(context.Background(), "alice", "f1"); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single call, got %d", got)
	}
}

func TestSystemParametersCached(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"status":"success","data":{"curve":"bn254","g":"AB12"}}`)
	}))

	for i := 0; i < 3; i++ {
		params, err := client.SystemParameters(context.Background())
		if err != nil {
			t.Fatalf("SystemParameters() error = %v", err)
		}
		if !strings.Contains(string(params), "bn254") {
			t.Errorf("unexpected params %s", params)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single fetch, got %d", got)
	}
}

func TestDeleteForgetsDetail(t *testing.T) {
	var detailCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/file/detail", func(w http.ResponseWriter, r *http.Request) {
		detailCalls.Add(1)
		writeEnvelope(w, models.FileDetail{ID: r.URL.Query().Get("file_uuid"), Name: "a.txt"})
	})
	mux.HandleFunc("/file/delete", func(w http.ResponseWriter, r *http.Request) {
		var req models.DeleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode delete body: %v", err)
		}
		if req.Username != "alice" || req.FileUUID != "f1" {
			t.Errorf("unexpected delete request %+v", req)
		}
		writeEnvelope(w, nil)
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := client.FileDetail(ctx, "f1"); err != nil {
			t.Fatal(err)
		}
	}
	if detailCalls.Load() != 1 {
		t.Fatalf("expected cached detail, got %d fetches", detailCalls.Load())
	}

	if err := client.DeleteFile(ctx, "alice", "f1"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.FileDetail(ctx, "f1"); err != nil {
		t.Fatal(err)
	}
	if detailCalls.Load() != 2 {
		t.Errorf("expected refetch after delete, got %d fetches", detailCalls.Load())
	}
}

func TestUploadAndDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/file/upload", func(w http.ResponseWriter, r *http.Request) {
		var req models.UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode upload body: %v", err)
		}
		if req.FileName != "report.pdf" || req.UploadUser != "alice" {
			t.Errorf("unexpected upload request %+v", req)
		}
		writeEnvelope(w, models.UploadResult{FileUUID: "new-id"})
	})
	mux.HandleFunc("/file/download", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","data":{"enc_shares_list":["s1","s2"]}}`)
	})
	client := newTestClient(t, mux)
	ctx := context.Background()

	id, err := client.UploadFile(ctx, models.UploadRequest{FileName: "report.pdf", UploadUser: "alice"})
	if err != nil || id != "new-id" {
		t.Fatalf("UploadFile() = %q, %v", id, err)
	}

	grant, err := client.RequestDownload(ctx, "new-id", "bob")
	if err != nil {
		t.Fatalf("RequestDownload() error = %v", err)
	}
	if len(grant.EncSharesList) != 2 {
		t.Errorf("expected 2 shares, got %d", len(grant.EncSharesList))
	}
}

func TestUploadConflict(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.Envelope{Status: "error", ErrorCode: 2001, ErrorMessage: "file already exists"})
	}))

	_, err := client.UploadFile(context.Background(), models.UploadRequest{FileName: "a"})
	if !IsFileExistsError(err) || !errors.Is(err, ErrFileAlreadyExists) {
		t.Errorf("expected duplicate file error, got %v", err)
	}
}

func TestMalformedResponse(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>gateway</html>")
	}))

	_, err := client.ListFiles(context.Background(), "alice")
	if err == nil || !strings.Contains(err.Error(), "malformed response") {
		t.Errorf("expected malformed response error, got %v", err)
	}
}

func TestParamCacheExpires(t *testing.T) {
	c := NewParamCache(20*time.Millisecond, 20*time.Millisecond)
	c.SetSystemParams(json.RawMessage(`{}`))
	c.SetDetail(&models.FileDetail{ID: "f1"})
	c.SetDetail(&models.FileDetail{})

	if _, ok := c.SystemParams(); !ok {
		t.Fatal("expected params to be cached")
	}
	if _, ok := c.Detail("f1"); !ok {
		t.Fatal("expected detail to be cached")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.SystemParams(); ok {
		t.Error("params should have expired")
	}
	if _, ok := c.Detail("f1"); ok {
		t.Error("detail should have expired")
	}
}
