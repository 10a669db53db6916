// Copyright 2026 fanjia1024

package secrets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

func TestNewStore(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		wantErr     bool
		errContains string
	}{
		{name: "default env", provider: ""},
		{name: "memory", provider: "memory"},
		{name: "env", provider: "env"},
		{name: "unknown provider", provider: "k8s", wantErr: true, errContains: "unsupported secret provider"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(Config{Provider: tc.provider})
			if tc.wantErr {
				if err == nil || !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %v, want contains %q", err, tc.errContains)
				}
				return
			}
			if err != nil || store == nil {
				t.Fatalf("unexpected: store=%v err=%v", store, err)
			}
		})
	}
}

func TestMemoryAndEnvStoreBasicContract(t *testing.T) {
	ctx := context.Background()
	for _, s := range []Store{NewMemoryStore(), NewEnvStore()} {
		if _, err := s.Get(ctx, "scopekit.test.missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
			t.Fatalf("missing secret: err=%v", err)
		}
		if err := s.Set(ctx, "scopekit.test.key", "value"); err != nil {
			t.Fatalf("set secret failed: %v", err)
		}
		got, err := s.Get(ctx, "scopekit.test.key")
		if err != nil || got != "value" {
			t.Fatalf("get secret = %q, %v", got, err)
		}
	}
}

func TestEnvStore_KeyMapping(t *testing.T) {
	t.Setenv("REMOTE_API_KEY", "k1")
	got, err := NewEnvStore().Get(context.Background(), "remote.api-key")
	if err != nil || got != "k1" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	_ = mem.Set(ctx, "anon", "from-store")

	if v, _ := Resolve(ctx, mem, "", "fallback"); v != "fallback" {
		t.Errorf("empty key: got %q", v)
	}
	if v, _ := Resolve(ctx, mem, "anon", "fallback"); v != "from-store" {
		t.Errorf("stored key: got %q", v)
	}
	if _, err := Resolve(ctx, mem, "missing", "fallback"); err == nil {
		t.Error("missing key should error")
	}
}

func TestVaultStore_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/sys/health"):
			_, _ = w.Write([]byte(`{"initialized":true,"sealed":false,"standby":false}`))
		case r.URL.Path == "/v1/secret/remote_api_key":
			_, _ = w.Write([]byte(`{"data":{"data":{"value":"vault-key"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	defer srv.Close()

	s, err := NewStore(Config{Provider: "vault", Address: srv.URL, Token: "t"})
	if err != nil {
		t.Fatalf("NewStore vault: %v", err)
	}
	got, err := s.Get(context.Background(), "remote_api_key")
	if err != nil || got != "vault-key" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if _, err := s.Get(context.Background(), "absent"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("absent: err=%v", err)
	}
}
