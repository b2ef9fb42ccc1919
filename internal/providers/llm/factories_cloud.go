// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"fmt"
	"time"

	"researchengine/internal/providers/llm/azure"
	"researchengine/internal/providers/llm/bedrock"
	"researchengine/internal/providers/llm/gemini"
)

// init registers the cloud-managed provider factories (Gemini, Azure
// OpenAI, AWS Bedrock) alongside the direct-API factories in
// factories.go. The teacher gated Bedrock behind a commercial license
// check (bootstrap.go's "Enterprise only" provider slot, populated by
// an init() in a file this pack never shipped); this engine has no
// license tiers, so all four LLM tiers register unconditionally.
func init() {
	RegisterFactory(ProviderTypeGemini, NewGeminiProviderFactory)
	RegisterFactory(ProviderTypeAzureOpenAI, NewAzureOpenAIProviderFactory)
	RegisterFactory(ProviderTypeBedrock, NewBedrockProviderFactory)
}

// NewGeminiProviderFactory creates a Gemini provider from configuration.
func NewGeminiProviderFactory(config ProviderConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, &FactoryError{
			ProviderType: ProviderTypeGemini,
			Code:         ErrFactoryInvalidConfig,
			Message:      "API key is required for Gemini provider",
		}
	}
	timeout := 120 * time.Second
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}
	provider, err := gemini.NewProvider(gemini.Config{
		APIKey:  config.APIKey,
		BaseURL: config.Endpoint,
		Model:   config.Model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, &FactoryError{
			ProviderType: ProviderTypeGemini,
			Code:         ErrFactoryCreationFailed,
			Message:      fmt.Sprintf("failed to create Gemini provider: %v", err),
			Cause:        err,
		}
	}
	return &GeminiProviderAdapter{provider: provider, name: config.Name}, nil
}

// GeminiProviderAdapter adapts gemini.Provider to the unified Provider interface.
type GeminiProviderAdapter struct {
	provider *gemini.Provider
	name     string
}

func (a *GeminiProviderAdapter) Name() string       { return a.name }
func (a *GeminiProviderAdapter) Type() ProviderType { return ProviderTypeGemini }

func (a *GeminiProviderAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := a.provider.Complete(ctx, gemini.CompletionRequest{
		Prompt:        req.Prompt,
		SystemPrompt:  req.SystemPrompt,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		Model:         req.Model,
		StopSequences: req.StopSequences,
	})
	if err != nil {
		return nil, err
	}
	return &CompletionResponse{
		Content: resp.Content,
		Model:   resp.Model,
		Usage: UsageStats{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency:      resp.Latency,
		FinishReason: resp.StopReason,
		Metadata:     map[string]any{"provider": "gemini"},
	}, nil
}

func (a *GeminiProviderAdapter) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	start := time.Now()
	status, msg := HealthStatusUnhealthy, "provider reports unhealthy"
	if a.provider.IsHealthy() {
		status, msg = HealthStatusHealthy, "provider is operational"
	}
	return &HealthCheckResult{Status: status, Latency: time.Since(start), Message: msg, LastChecked: time.Now()}, nil
}

func (a *GeminiProviderAdapter) Capabilities() []Capability {
	return []Capability{CapabilityChat, CapabilityCompletion, CapabilityStreaming, CapabilityVision, CapabilityLongContext}
}

func (a *GeminiProviderAdapter) SupportsStreaming() bool { return a.provider.SupportsStreaming() }

func (a *GeminiProviderAdapter) EstimateCost(req CompletionRequest) *CostEstimate {
	const inCost, outCost = 0.00125, 0.005 // Gemini 1.5 Pro pricing per 1K tokens
	inTok, outTok := estimateTokens(req)
	return &CostEstimate{
		InputCostPer1K: inCost, OutputCostPer1K: outCost,
		EstimatedInputTokens: inTok, EstimatedOutputTokens: outTok,
		TotalEstimate: calculateCost(inTok, outTok, inCost, outCost), Currency: "USD",
	}
}

var _ Provider = (*GeminiProviderAdapter)(nil)

// NewAzureOpenAIProviderFactory creates an Azure OpenAI provider from configuration.
func NewAzureOpenAIProviderFactory(config ProviderConfig) (Provider, error) {
	if config.Endpoint == "" || config.APIKey == "" || config.Model == "" {
		return nil, &FactoryError{
			ProviderType: ProviderTypeAzureOpenAI,
			Code:         ErrFactoryInvalidConfig,
			Message:      "endpoint, API key, and deployment name (model) are required for Azure OpenAI",
		}
	}
	timeout := 120 * time.Second
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}
	apiVersion, _ := config.Settings["api_version"].(string)
	provider, err := azure.NewProvider(azure.Config{
		Endpoint:       config.Endpoint,
		APIKey:         config.APIKey,
		DeploymentName: config.Model,
		APIVersion:     apiVersion,
		Timeout:        timeout,
	})
	if err != nil {
		return nil, &FactoryError{
			ProviderType: ProviderTypeAzureOpenAI,
			Code:         ErrFactoryCreationFailed,
			Message:      fmt.Sprintf("failed to create Azure OpenAI provider: %v", err),
			Cause:        err,
		}
	}
	return &AzureProviderAdapter{provider: provider, name: config.Name}, nil
}

// AzureProviderAdapter adapts azure.Provider to the unified Provider interface.
type AzureProviderAdapter struct {
	provider *azure.Provider
	name     string
}

func (a *AzureProviderAdapter) Name() string       { return a.name }
func (a *AzureProviderAdapter) Type() ProviderType { return ProviderTypeAzureOpenAI }

func (a *AzureProviderAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := a.provider.Complete(ctx, azure.CompletionRequest{
		Prompt:        req.Prompt,
		SystemPrompt:  req.SystemPrompt,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		Model:         req.Model,
		StopSequences: req.StopSequences,
	})
	if err != nil {
		return nil, err
	}
	return &CompletionResponse{
		Content: resp.Content,
		Model:   resp.Model,
		Usage: UsageStats{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency:      resp.Latency,
		FinishReason: resp.StopReason,
		Metadata:     map[string]any{"provider": "azure-openai"},
	}, nil
}

func (a *AzureProviderAdapter) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	start := time.Now()
	status, msg := HealthStatusUnhealthy, "provider reports unhealthy"
	if a.provider.IsHealthy() {
		status, msg = HealthStatusHealthy, "provider is operational"
	}
	return &HealthCheckResult{Status: status, Latency: time.Since(start), Message: msg, LastChecked: time.Now()}, nil
}

func (a *AzureProviderAdapter) Capabilities() []Capability {
	return []Capability{CapabilityChat, CapabilityCompletion, CapabilityStreaming, CapabilityFunctionCalling}
}

func (a *AzureProviderAdapter) SupportsStreaming() bool { return a.provider.SupportsStreaming() }

func (a *AzureProviderAdapter) EstimateCost(req CompletionRequest) *CostEstimate {
	const inCost, outCost = 0.0025, 0.01 // GPT-4o-class pricing per 1K tokens
	inTok, outTok := estimateTokens(req)
	return &CostEstimate{
		InputCostPer1K: inCost, OutputCostPer1K: outCost,
		EstimatedInputTokens: inTok, EstimatedOutputTokens: outTok,
		TotalEstimate: calculateCost(inTok, outTok, inCost, outCost), Currency: "USD",
	}
}

var _ Provider = (*AzureProviderAdapter)(nil)

// NewBedrockProviderFactory creates an AWS Bedrock provider from configuration.
func NewBedrockProviderFactory(config ProviderConfig) (Provider, error) {
	if config.Region == "" {
		return nil, &FactoryError{
			ProviderType: ProviderTypeBedrock,
			Code:         ErrFactoryInvalidConfig,
			Message:      "region is required for Bedrock provider",
		}
	}
	timeout := 120 * time.Second
	if config.TimeoutSeconds > 0 {
		timeout = time.Duration(config.TimeoutSeconds) * time.Second
	}
	provider, err := bedrock.NewProvider(context.Background(), bedrock.Config{
		Region:  config.Region,
		Model:   config.Model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, &FactoryError{
			ProviderType: ProviderTypeBedrock,
			Code:         ErrFactoryCreationFailed,
			Message:      fmt.Sprintf("failed to create Bedrock provider: %v", err),
			Cause:        err,
		}
	}
	return &BedrockProviderAdapter{provider: provider, name: config.Name}, nil
}

// BedrockProviderAdapter adapts bedrock.Provider to the unified Provider interface.
type BedrockProviderAdapter struct {
	provider *bedrock.Provider
	name     string
}

func (a *BedrockProviderAdapter) Name() string       { return a.name }
func (a *BedrockProviderAdapter) Type() ProviderType { return ProviderTypeBedrock }

func (a *BedrockProviderAdapter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := a.provider.Complete(ctx, bedrock.CompletionRequest{
		Prompt:        req.Prompt,
		SystemPrompt:  req.SystemPrompt,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		Model:         req.Model,
		StopSequences: req.StopSequences,
	})
	if err != nil {
		return nil, err
	}
	return &CompletionResponse{
		Content: resp.Content,
		Model:   resp.Model,
		Usage: UsageStats{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency:      resp.Latency,
		FinishReason: resp.StopReason,
		Metadata:     map[string]any{"provider": "bedrock"},
	}, nil
}

func (a *BedrockProviderAdapter) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	start := time.Now()
	status, msg := HealthStatusUnhealthy, "provider reports unhealthy"
	if a.provider.IsHealthy() {
		status, msg = HealthStatusHealthy, "provider is operational"
	}
	return &HealthCheckResult{Status: status, Latency: time.Since(start), Message: msg, LastChecked: time.Now()}, nil
}

func (a *BedrockProviderAdapter) Capabilities() []Capability {
	return []Capability{CapabilityChat, CapabilityCompletion, CapabilityLongContext}
}

func (a *BedrockProviderAdapter) SupportsStreaming() bool { return a.provider.SupportsStreaming() }

func (a *BedrockProviderAdapter) EstimateCost(req CompletionRequest) *CostEstimate {
	inTok, outTok := estimateTokens(req)
	const inCost, outCost = 0.003, 0.015 // Claude 3.5 Sonnet v2 on Bedrock, per 1K tokens
	return &CostEstimate{
		InputCostPer1K: inCost, OutputCostPer1K: outCost,
		EstimatedInputTokens: inTok, EstimatedOutputTokens: outTok,
		TotalEstimate: calculateCost(inTok, outTok, inCost, outCost), Currency: "USD",
	}
}

var _ Provider = (*BedrockProviderAdapter)(nil)
