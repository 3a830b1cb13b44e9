package dispatch

import (
	"context"
	"time"
)

// GenerationRequest describes one text-generation call.
// Treat values as immutable once built.
type GenerationRequest struct {
	Prompt      string
	System      string
	Model       string
	Temperature float64 // 0..1
	MaxTokens   int     // bounded by the provider
}

// TokenUsage is the prompt/completion/total count triple, when the provider
// reports it.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// GenerationResult is created once per successful generation dispatch.
type GenerationResult struct {
	Text     string            `json:"text"`
	Model    string            `json:"model"`
	Usage    *TokenUsage       `json:"usage,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MediaRef points at one media asset to attach to a post.
// The URL form is what most publish APIs consume; AltText is optional.
type MediaRef struct {
	URL     string `json:"url"`
	Kind    string `json:"kind,omitempty"` // "image" | "video"
	AltText string `json:"alt_text,omitempty"`
}

// PublishPayload is the content fanned out to every registered target.
// Validate before dispatch; treat as immutable once built.
type PublishPayload struct {
	Content     string     `json:"content"`
	Media       []MediaRef `json:"media,omitempty"`
	Hashtags    []string   `json:"hashtags,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// PublishOutcome records one (payload, target) result. Exactly one exists per
// target per fan-out, success or not.
type PublishOutcome struct {
	Success     bool      `json:"success"`
	PostID      string    `json:"post_id,omitempty"`
	URL         string    `json:"url,omitempty"`
	Error       string    `json:"error,omitempty"`
	Target      string    `json:"target"`
	CompletedAt time.Time `json:"completed_at"`
}

// FanOutResult aggregates one payload's outcomes across all targets.
// Built once after every target completes; immutable afterwards.
type FanOutResult struct {
	// Success is true iff at least one target succeeded.
	Success  bool                      `json:"success"`
	Outcomes map[string]PublishOutcome `json:"outcomes"`
	// Errors maps failed target names to their error message.
	Errors    map[string]string `json:"errors,omitempty"`
	Succeeded []string          `json:"succeeded"`
	Failed    []string          `json:"failed"`
	// TotalAttempts counts every dispatch attempt across all targets,
	// retries included.
	TotalAttempts int       `json:"total_attempts"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Generator is the capability a language-model backend exposes.
//
// Implementations translate GenerationRequest onto their own wire shape and
// map wire errors onto classified dispatch errors. They must not retry
// internally; retrying is the policy layer's job.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// Publisher is the capability a social-publish backend exposes.
//
// Same contract as Generator: pure translation, accurate error
// classification, no internal retries. CheckPayload lets a target veto
// payloads it can never publish (a video-only network without media, a
// length cap tighter than the shared one); it returns violation codes,
// empty when the payload is acceptable.
type Publisher interface {
	Kind() string
	Publish(ctx context.Context, payload PublishPayload) (*PublishOutcome, error)
	CheckPayload(payload PublishPayload) []string
}
