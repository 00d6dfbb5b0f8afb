package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider evaluates an audit prompt against an LLM judge and returns the raw
// model output together with token usage.
type Provider interface {
	Evaluate(ctx context.Context, prompt string) (string, Usage, error)
	Model() string
}

// Usage captures token consumption and estimated cost for a single call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	Cost             float64
}

// Add returns the element-wise sum of two usage records.
func (u Usage) Add(v Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + v.PromptTokens,
		CompletionTokens: u.CompletionTokens + v.CompletionTokens,
		TotalTokens:      u.TotalTokens + v.TotalTokens,
		Cost:             u.Cost + v.Cost,
	}
}

// Options configures a judge provider.
type Options struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	Temperature     float64
	MaxOutputTokens int
}

// APIError is returned when the provider answers with a non-200 status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("judge API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("judge API returned status %d: %s", e.StatusCode, e.Message)
}

// IsRateLimit reports whether err looks like a throttling response. Retry
// schedules back off much longer for these.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "rate_limit", "too many requests", "quota"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// modelContextTokens maps known models to their context window. Unknown
// models fall back to a conservative window.
var modelContextTokens = map[string]int{
	"gpt-5":        400000,
	"gpt-5-mini":   400000,
	"gpt-5-nano":   400000,
	"gpt-4.1":      1000000,
	"gpt-4.1-mini": 1000000,
	"gpt-4o":       128000,
	"gpt-4o-mini":  128000,
	"o3":           200000,
	"o4-mini":      200000,
}

const defaultContextTokens = 16000

// ContextTokens returns the context window for a model, matching exact names
// first and then the longest known prefix (so dated snapshots like
// gpt-4o-2024-08-06 resolve to their family).
func ContextTokens(model string) int {
	if tokens, ok := modelContextTokens[model]; ok {
		return tokens
	}
	best := ""
	for name := range modelContextTokens {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best != "" {
		return modelContextTokens[best]
	}
	return defaultContextTokens
}

type modelPricing struct {
	inPer1K  float64
	outPer1K float64
}

var pricingTable = map[string]modelPricing{
	"gpt-5":        {0.00125, 0.010},
	"gpt-5-mini":   {0.00025, 0.002},
	"gpt-5-nano":   {0.00005, 0.0004},
	"gpt-4.1":      {0.002, 0.008},
	"gpt-4.1-mini": {0.0004, 0.0016},
	"gpt-4o":       {0.0025, 0.010},
	"gpt-4o-mini":  {0.00015, 0.0006},
	"o3":           {0.002, 0.008},
	"o4-mini":      {0.0011, 0.0044},
}

// EstimateCost converts token counts into USD for cost tracking. Unknown
// models report zero rather than guessing a rate.
func EstimateCost(model string, promptTokens, completionTokens int64) float64 {
	pricing, ok := pricingTable[model]
	if !ok {
		best := ""
		for name := range pricingTable {
			if strings.HasPrefix(model, name) && len(name) > len(best) {
				best = name
			}
		}
		if best == "" {
			return 0
		}
		pricing = pricingTable[best]
	}
	return float64(promptTokens)/1000.0*pricing.inPer1K + float64(completionTokens)/1000.0*pricing.outPer1K
}

// New creates a provider for the configured backend type.
func New(providerType string, opts Options) (Provider, error) {
	switch providerType {
	case "openai":
		return NewOpenAI(opts), nil
	default:
		return nil, fmt.Errorf("unsupported judge provider type: %s", providerType)
	}
}
