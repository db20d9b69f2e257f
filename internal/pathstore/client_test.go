package pathstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_PutNode(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody NodeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	defer c.Close()
	err := c.PutNode(context.Background(), "catalog/doc1/meta", NodeRequest{
		Value:  map[string]any{"filename": "books.md"},
		Source: "bibgest:doc1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/kv/catalog/doc1/meta" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotBody.Source != "bibgest:doc1" {
		t.Errorf("unexpected body %+v", gotBody)
	}
}

func TestClient_GetNode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/kv/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"key_path": "catalog.doc1.meta",
			"value":    map[string]any{"sections": 3},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	node, err := c.GetNode(context.Background(), "catalog/doc1/meta")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node == nil || node.Key != "catalog.doc1.meta" {
		t.Fatalf("unexpected node %+v", node)
	}

	missing, err := c.GetNode(context.Background(), "missing")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing node, got %+v, %v", missing, err)
	}
}

func TestClient_ListChildren(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.URL.Path != "/kv/catalog/*" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"nodes":[{"key_path":"catalog.a.meta","value":1},{"key_path":"catalog.b.meta","value":2}]}`))
	}))
	defer srv.Close()

	children, err := NewClient(srv.URL, "k").ListChildren(context.Background(), "catalog", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(children) != 2 || children[1].Key != "catalog.b.meta" {
		t.Errorf("unexpected children %+v", children)
	}
	if gotQuery != "limit=50" {
		t.Errorf("unexpected query %q", gotQuery)
	}
}

func TestClient_DeleteNodeRecursive(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, "k").DeleteNode(context.Background(), "catalog/doc1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "children=true" {
		t.Errorf("unexpected query %q", gotQuery)
	}
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		err := NewClient(srv.URL, "k").PutNode(context.Background(), "x", NodeRequest{Value: 1})
		srv.Close()
		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}
		var re *RetryableError
		if errors.As(err, &re) != tt.retryable {
			t.Errorf("status %d: expected retryable=%v, got %v", tt.status, tt.retryable, err)
		}
	}
}
