package handler

import (
	"net/http"
	"testing"

	"github.com/martijn/vmorch/internal/api/dto"
)

func TestListHosts(t *testing.T) {
	env := setupTestEnv(t)

	w := env.makeRequest(t, http.MethodGet, "/hosts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	resp := decode[dto.HostListResponse](t, w)
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 host, got %+v", resp.Items)
	}
	h := resp.Items[0]
	if h.Alias != "vm1" || h.Host != "127.0.0.1" || h.User != "ops" || h.Port != 22 {
		t.Errorf("unexpected host: %+v", h)
	}
}

func TestTestHost(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"unknown alias", "/hosts/ghost/test", http.StatusNotFound},
		{"bad timeout", "/hosts/vm1/test?timeout=soon", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.makeRequest(t, http.MethodPost, tt.path, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("expected %d, got %d\nBody: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestListCommands(t *testing.T) {
	env := setupTestEnv(t)

	w := env.makeRequest(t, http.MethodGet, "/commands", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	resp := decode[dto.CommandListResponse](t, w)
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 commands, got %+v", resp.Items)
	}
	if resp.Items[0].Key != "deploy" || resp.Items[0].HostAlias != "vm1" || resp.Items[1].Key != "hello" {
		t.Errorf("unexpected commands: %+v", resp.Items)
	}
}
