package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewAppSheetClient_Validation(t *testing.T) {
	if _, err := NewAppSheetClient(AppSheetConfig{AppID: "app"}); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("missing key error = %v, want ErrInvalidAPIKey", err)
	}
	if _, err := NewAppSheetClient(AppSheetConfig{AccessKey: "k"}); err == nil {
		t.Error("missing app id error = nil")
	}
}

func TestAppSheetClient_AddRow(t *testing.T) {
	var gotPath, gotKey, gotContentType string
	var got appSheetAction
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotKey = r.Header.Get("applicationAccessKey")
		gotContentType = r.Header.Get("Content-Type")
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"Rows":[]}`))
	}))
	defer server.Close()

	c, err := NewAppSheetClient(AppSheetConfig{BaseURL: server.URL, AppID: "app-1", AccessKey: "secret", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewAppSheetClient() error = %v", err)
	}
	if err := c.AddRow(context.Background(), map[string]string{"ID": "x"}); err != nil {
		t.Fatalf("AddRow() error = %v", err)
	}
	if gotPath != "/apps/app-1/tables/Table%201/Action" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("applicationAccessKey = %q", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if got.Action != "Add" || got.Properties.Locale != "en-US" || got.Properties.TimeZone != "Indian/Mauritius" {
		t.Errorf("payload = %+v", got)
	}
	if len(got.Rows) != 1 {
		t.Errorf("rows = %d, want 1", len(got.Rows))
	}
}

func TestAppSheetClient_AddRow_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := NewAppSheetClient(AppSheetConfig{BaseURL: server.URL, AppID: "app", AccessKey: "k", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewAppSheetClient() error = %v", err)
	}
	err = c.AddRow(context.Background(), map[string]string{})
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("AddRow() error = %v, want ErrUpstreamFailure", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}
