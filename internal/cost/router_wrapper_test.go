// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"context"
	"testing"
	"time"

	"researchengine/internal/providers/llm"
)

// fakeCompleter implements llm.Completer for wrapper tests.
type fakeCompleter struct {
	resp *llm.CompletionResponse
	info *llm.RouteInfo
	err  error
}

func (f *fakeCompleter) RouteRequest(ctx context.Context, req llm.CompletionRequest, opts ...llm.RouteOption) (*llm.CompletionResponse, *llm.RouteInfo, error) {
	return f.resp, f.info, f.err
}

func TestGenerateRequestID(t *testing.T) {
	id1 := generateRequestID()
	id2 := generateRequestID()

	if id1 == "" {
		t.Error("generateRequestID() returned empty string")
	}

	// IDs should contain a timestamp and random portion
	if len(id1) < 16 { // At least "20060102150405-x"
		t.Errorf("generateRequestID() returned too short ID: %s", id1)
	}

	// IDs should be different (with very high probability)
	// Note: This could theoretically fail if called within same nanosecond
	// but in practice this is fine for testing
	_ = id2 // Just verify no panic
}

func TestRandomString(t *testing.T) {
	tests := []struct {
		name   string
		length int
	}{
		{"length 1", 1},
		{"length 8", 8},
		{"length 16", 16},
		{"length 0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := randomString(tt.length)
			if len(got) != tt.length {
				t.Errorf("randomString(%d) returned length %d", tt.length, len(got))
			}
		})
	}
}

func TestNewCostTrackingRouter(t *testing.T) {
	repo := NewMockRepository()
	service := NewService(repo, nil)

	router := NewCostTrackingRouter(&fakeCompleter{}, service, nil)
	if router == nil {
		t.Fatal("NewCostTrackingRouter() returned nil")
	}

	if router.service != service {
		t.Error("service not properly set")
	}

	if router.logger == nil {
		t.Error("logger should default to log.Default()")
	}
}

func TestCostTrackingRouterAccessors(t *testing.T) {
	repo := NewMockRepository()
	service := NewService(repo, nil)
	router := NewCostTrackingRouter(&fakeCompleter{}, service, nil)

	if router.Service() != service {
		t.Error("Service() should return the service")
	}
}

func TestCostTrackingRouterRecordsUsage(t *testing.T) {
	repo := NewMockRepository()
	service := NewService(repo, nil)

	completer := &fakeCompleter{
		resp: &llm.CompletionResponse{Model: "claude-sonnet-4"},
		info: &llm.RouteInfo{
			ProviderName:     "anthropic",
			Model:            "claude-sonnet-4",
			PromptTokens:     100,
			CompletionTokens: 50,
			Company:          "acme-corp",
		},
	}
	router := NewCostTrackingRouter(completer, service, nil)

	_, _, err := router.RouteRequest(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// RecordUsage is dispatched asynchronously from RouteRequest.
	time.Sleep(50 * time.Millisecond)

	repo.mu.RLock()
	n := len(repo.records)
	repo.mu.RUnlock()
	if n != 1 {
		t.Fatalf("expected 1 recorded usage record, got %d", n)
	}
}

func TestCostTrackingRouterAsCostSink(t *testing.T) {
	repo := NewMockRepository()
	service := NewService(repo, nil)
	router := NewCostTrackingRouter(&fakeCompleter{}, service, nil)

	var sink llm.CostSink = router
	sink.RecordRoute(context.Background(), &llm.RouteInfo{
		ProviderName: "anthropic",
		Model:        "claude-sonnet-4",
		Company:      "acme-corp",
	})

	time.Sleep(50 * time.Millisecond)

	repo.mu.RLock()
	n := len(repo.records)
	repo.mu.RUnlock()
	if n != 1 {
		t.Fatalf("expected 1 recorded usage record via CostSink, got %d", n)
	}
}
