package social

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
)

const (
	twitterAPIURL = "https://api.twitter.com/2"

	// The shared payload cap is far above the post limit here, so the
	// adapter enforces its own.
	twitterMaxChars = 280
)

type twitter struct {
	name        string
	accessToken string
	baseURL     string
	api         *apiClient
}

func newTwitter(name string, creds map[string]string) (*twitter, error) {
	token, err := credential(creds, "access_token")
	if err != nil {
		return nil, err
	}
	baseURL := creds["base_url"]
	if baseURL == "" {
		baseURL = twitterAPIURL
	}
	return &twitter{name: name, accessToken: token, baseURL: baseURL, api: newAPIClient(name)}, nil
}

func (t *twitter) Kind() string { return KindTwitter }

func (t *twitter) CheckPayload(p dispatch.PublishPayload) []string {
	if utf8.RuneCountInString(composeMessage(p)) > twitterMaxChars {
		return []string{"content_exceeds_280"}
	}
	return nil
}

func (t *twitter) Publish(ctx context.Context, p dispatch.PublishPayload) (*dispatch.PublishOutcome, error) {
	body := map[string]any{"text": composeMessage(p)}
	headers := map[string]string{"Authorization": "Bearer " + t.accessToken}

	var resp struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := t.api.postJSON(ctx, t.baseURL+"/tweets", headers, body, &resp); err != nil {
		return nil, err
	}

	return &dispatch.PublishOutcome{
		PostID:      resp.Data.ID,
		URL:         "https://twitter.com/i/web/status/" + resp.Data.ID,
		CompletedAt: time.Now(),
	}, nil
}
