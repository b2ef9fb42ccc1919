// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"context"
	"log"
	"time"

	"researchengine/internal/providers/llm"
)

// CostTrackingRouter decorates an llm.Completer so every completion it
// routes is recorded against the cost ledger without the agent code that
// calls RouteRequest needing to know the ledger exists.
type CostTrackingRouter struct {
	completer llm.Completer
	service   *Service
	logger    *log.Logger
}

// NewCostTrackingRouter wraps completer with cost tracking backed by service.
func NewCostTrackingRouter(completer llm.Completer, service *Service, logger *log.Logger) *CostTrackingRouter {
	if logger == nil {
		logger = log.Default()
	}
	return &CostTrackingRouter{
		completer: completer,
		service:   service,
		logger:    logger,
	}
}

// RouteRequest routes a completion request through the wrapped completer
// and records the resulting usage against the cost ledger.
func (c *CostTrackingRouter) RouteRequest(ctx context.Context, req llm.CompletionRequest, opts ...llm.RouteOption) (*llm.CompletionResponse, *llm.RouteInfo, error) {
	resp, info, err := c.completer.RouteRequest(ctx, req, opts...)
	if err != nil {
		return resp, info, err
	}

	if c.service != nil && resp != nil && info != nil {
		go c.recordUsage(info)
	}

	return resp, info, nil
}

// RecordRoute implements llm.CostSink, letting a bare *llm.Router call back
// into the ledger directly instead of being wrapped by CostTrackingRouter.
func (c *CostTrackingRouter) RecordRoute(ctx context.Context, info *llm.RouteInfo) {
	if c.service == nil || info == nil {
		return
	}
	c.recordUsage(info)
}

func (c *CostTrackingRouter) recordUsage(info *llm.RouteInfo) {
	record := &UsageRecord{
		RequestID:   generateRequestID(),
		Timestamp:   time.Now().UTC(),
		Company:     info.Company,
		Provider:    info.ProviderName,
		Model:       info.Model,
		TokensIn:    info.PromptTokens,
		TokensOut:   info.CompletionTokens,
		CostUSD:     0, // calculated by the service from pricing
		RequestType: "completion",
	}

	if err := c.service.RecordUsage(context.Background(), record); err != nil {
		c.logger.Printf("[Cost] Failed to record usage: %v", err)
	}
}

// Service returns the cost service backing this router.
func (c *CostTrackingRouter) Service() *Service {
	return c.service
}

func generateRequestID() string {
	return time.Now().Format("20060102150405") + "-" + randomString(8)
}

func randomString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[time.Now().UnixNano()%int64(len(letters))]
	}
	return string(b)
}
