// Package llm contains the generation-side provider adapters.
//
// Each adapter is pure translation: it maps a dispatch.GenerationRequest onto
// its provider's wire shape and maps wire errors onto classified dispatch
// errors. Retry, backoff and fallback live in the dispatch package.
package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// Provider kinds the factory knows how to build.
const (
	KindOpenAI  = "openai"
	KindMistral = "mistral"
	KindLocal   = "local"
	KindGemini  = "gemini"
)

// Settings is the opaque provider configuration: credentials, endpoint
// overrides and model defaults.
type Settings struct {
	Kind    string
	Model   string
	APIKey  string
	BaseURL string
}

// New constructs a generation adapter for the given settings.
func New(cfg Settings, log logx.Logger) (dispatch.Generator, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	switch kind {
	case KindOpenAI:
		return newChatClient(KindOpenAI, cfg, "")
	case KindMistral:
		return newChatClient(KindMistral, cfg, "https://api.mistral.ai/v1")
	case KindLocal:
		// Local runtimes (Ollama, llama.cpp server) speak the OpenAI
		// chat-completions dialect.
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://127.0.0.1:11434/v1"
		}
		if cfg.APIKey == "" {
			cfg.APIKey = "local"
		}
		return newChatClient(KindLocal, cfg, cfg.BaseURL)
	case KindGemini:
		return newGemini(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider kind: %q", cfg.Kind)
	}
}

// Kinds lists every constructible generation provider kind.
func Kinds() []string {
	return []string{KindGemini, KindLocal, KindMistral, KindOpenAI}
}

var errMissingAPIKey = errors.New("api key is required")
var errMissingModel = errors.New("model is required")
