// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package bedrock provides an LLM provider implementation backed by
// AWS Bedrock's managed Anthropic Claude models, following the same
// Config/CompletionRequest/CompletionResponse shape as the sibling
// anthropic/gemini/azure provider packages so the unified adapter in
// internal/providers/llm can wrap all four identically.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	// DefaultModel is the Bedrock model ID used when none is given.
	DefaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"

	// DefaultTimeout is the default per-call timeout.
	DefaultTimeout = 120 * time.Second

	// anthropicVersion is the Bedrock-specific Anthropic message format version.
	anthropicVersion = "bedrock-2023-05-31"
)

// bedrockClient is the subset of *bedrockruntime.Client this package
// needs, so tests can substitute a fake without a live AWS account.
type bedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Config configures the Bedrock provider.
type Config struct {
	Region          string        // Required: AWS region, e.g. "us-east-1"
	Model           string        // Optional: Bedrock model ID (default: Claude 3.5 Sonnet v2)
	AccessKeyID     string        // Optional: static credentials; empty uses the default chain
	SecretAccessKey string        // Optional: paired with AccessKeyID
	SessionToken    string        // Optional: for temporary credentials
	Timeout         time.Duration // Optional: per-call timeout (default: 120s)
}

// CompletionRequest mirrors the sibling providers' request shape.
type CompletionRequest struct {
	Prompt        string
	SystemPrompt  string
	MaxTokens     int
	Temperature   float64
	TopP          float64
	TopK          int
	Model         string
	StopSequences []string
}

// UsageStats tracks token usage, matching the sibling providers.
type UsageStats struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// CompletionResponse mirrors the sibling providers' response shape.
type CompletionResponse struct {
	Content    string
	Model      string
	StopReason string
	Usage      UsageStats
	Latency    time.Duration
}

// Provider implements an LLM provider backed by AWS Bedrock.
type Provider struct {
	client  bedrockClient
	model   string
	timeout time.Duration
	mu      sync.RWMutex
	healthy bool
}

// NewProvider builds a Bedrock provider, resolving AWS credentials from
// the given static keys or, if empty, the default AWS credential chain
// (env vars, shared config, instance role).
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("bedrock: region is required")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: loading AWS config: %w", err)
	}

	return &Provider{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		model:   model,
		timeout: timeout,
		healthy: true,
	}, nil
}

// Name returns the provider's identifier.
func (p *Provider) Name() string { return "bedrock" }

// SupportsStreaming reports that this provider does not implement
// Bedrock's response-stream API; non-goal per spec.md (no real-time
// streaming UI).
func (p *Provider) SupportsStreaming() bool { return false }

// IsHealthy reports whether the last call succeeded.
func (p *Provider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy
}

func (p *Provider) setHealthy(healthy bool) {
	p.mu.Lock()
	p.healthy = healthy
	p.mu.Unlock()
}

// anthropicMessageBody is the Bedrock Anthropic Messages API wire format.
type anthropicMessageBody struct {
	AnthropicVersion string              `json:"anthropic_version"`
	MaxTokens        int                 `json:"max_tokens"`
	System           string              `json:"system,omitempty"`
	Messages         []anthropicMessage  `json:"messages"`
	Temperature      float64             `json:"temperature,omitempty"`
	TopP             float64             `json:"top_p,omitempty"`
	TopK             int                 `json:"top_k,omitempty"`
	StopSequences    []string            `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponseBody struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete invokes the configured Bedrock model and returns its text
// completion, following the Anthropic Messages wire format Bedrock
// expects for anthropic.* model IDs.
func (p *Provider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	body := anthropicMessageBody{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		System:           req.SystemPrompt,
		Messages:         []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		TopK:             req.TopK,
		StopSequences:    req.StopSequences,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("bedrock: marshalling request: %w", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("bedrock: invoke model: %w", err)
	}

	var resp anthropicResponseBody
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("bedrock: decoding response: %w", err)
	}
	p.setHealthy(true)

	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	return &CompletionResponse{
		Content:    text,
		Model:      resp.Model,
		StopReason: resp.StopReason,
		Usage: UsageStats{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// EstimateCost returns a rough cost in USD for the given token count,
// at a blended 0.009 USD per 1K tokens (Claude 3.5 Sonnet v2 pricing on
// Bedrock, same as direct Anthropic API pricing).
func (p *Provider) EstimateCost(tokens int) float64 {
	const costPer1K = 0.009 // blended input/output estimate
	return float64(tokens) / 1000 * costPer1K
}
