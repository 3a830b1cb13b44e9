package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// gemini speaks the generateContent REST shape directly; there is no
// OpenAI-compatible endpoint for it.
type gemini struct {
	model   string
	apiKey  string
	baseURL string
	http    *http.Client
}

func newGemini(cfg Settings) (*gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errMissingModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	return &gemini{
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (g *gemini) Name() string { return KindGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenCfg   `json:"generationConfig,omitempty"`
}

type geminiGenCfg struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
	Error        *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *gemini) Generate(ctx context.Context, req dispatch.GenerationRequest) (*dispatch.GenerationResult, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		body.GenerationConfig = &geminiGenCfg{Temperature: req.Temperature, MaxOutputTokens: req.MaxTokens}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, dispatch.WrapError(dispatch.KindClient, KindGemini, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, dispatch.WrapError(dispatch.KindClient, KindGemini, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, dispatch.Classify(KindGemini, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, dispatch.Classify(KindGemini, err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil && resp.StatusCode < 300 {
		return nil, dispatch.WrapError(dispatch.KindServer, KindGemini, err)
	}
	if resp.StatusCode >= 300 {
		msg := ""
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, dispatch.FromStatus(KindGemini, resp.StatusCode, msg)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, dispatch.NewError(dispatch.KindServer, KindGemini, "no candidates in response")
	}

	var text strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}

	res := &dispatch.GenerationResult{
		Text:     text.String(),
		Model:    model,
		Metadata: map[string]string{"finish_reason": parsed.Candidates[0].FinishReason},
	}
	if parsed.ModelVersion != "" {
		res.Model = parsed.ModelVersion
	}
	if u := parsed.UsageMetadata; u != nil {
		res.Usage = &dispatch.TokenUsage{
			Prompt:     u.PromptTokenCount,
			Completion: u.CandidatesTokenCount,
			Total:      u.TotalTokenCount,
		}
	}
	return res, nil
}
