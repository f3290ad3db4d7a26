package cliclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/msbrogli/tmuxdeck/internal/apperr"
)

func TestGetJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer token forwarded, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"hello": "world"})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	var out map[string]string
	if err := c.GetJSON(context.Background(), "/whatever", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["hello"] != "world" {
		t.Fatalf("got %+v", out)
	}
}

func TestDo_ErrorEnvelopeClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "TargetMissing", "message": "no such session"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.GetJSON(context.Background(), "/containers/x/sessions/y", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.KindOf(err) != apperr.TargetMissing {
		t.Fatalf("expected TargetMissing, got %v", apperr.KindOf(err))
	}
}

func TestDo_UnparseableErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	err := c.GetJSON(context.Background(), "/x", nil)
	if apperr.KindOf(err) != apperr.Internal {
		t.Fatalf("expected Internal fallback, got %v", apperr.KindOf(err))
	}
}

func TestPathEscapeTarget(t *testing.T) {
	got := PathEscapeTarget("abc", "work", 2)
	want := "/containers/abc/sessions/work/windows/2"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestPostJSON_SendsBodyAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "work" {
			t.Errorf("expected request body forwarded, got %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "created"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	var out map[string]string
	err := c.PostJSON(context.Background(), "/containers/x/sessions", map[string]string{"name": "work"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["status"] != "created" {
		t.Fatalf("got %+v", out)
	}
}
