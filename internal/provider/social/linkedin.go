package social

import (
	"context"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
)

const linkedinAPIURL = "https://api.linkedin.com/v2"

// linkedin publishes UGC posts on behalf of a member or organization URN.
type linkedin struct {
	name        string
	authorURN   string
	accessToken string
	baseURL     string
	api         *apiClient
}

func newLinkedIn(name string, creds map[string]string) (*linkedin, error) {
	author, err := credential(creds, "author_urn")
	if err != nil {
		return nil, err
	}
	token, err := credential(creds, "access_token")
	if err != nil {
		return nil, err
	}
	baseURL := creds["base_url"]
	if baseURL == "" {
		baseURL = linkedinAPIURL
	}
	return &linkedin{name: name, authorURN: author, accessToken: token, baseURL: baseURL, api: newAPIClient(name)}, nil
}

func (l *linkedin) Kind() string { return KindLinkedIn }

func (l *linkedin) CheckPayload(p dispatch.PublishPayload) []string { return nil }

func (l *linkedin) Publish(ctx context.Context, p dispatch.PublishPayload) (*dispatch.PublishOutcome, error) {
	shareContent := map[string]any{
		"shareCommentary":    map[string]any{"text": composeMessage(p)},
		"shareMediaCategory": "NONE",
	}
	if media, ok := firstMedia(p, ""); ok {
		category := "IMAGE"
		if media.Kind == "video" {
			category = "VIDEO"
		}
		shareContent["shareMediaCategory"] = category
		shareContent["media"] = []map[string]any{{
			"status":      "READY",
			"originalUrl": media.URL,
			"description": map[string]any{"text": media.AltText},
		}}
	}

	body := map[string]any{
		"author":         l.authorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": shareContent,
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	headers := map[string]string{
		"Authorization":             "Bearer " + l.accessToken,
		"X-Restli-Protocol-Version": "2.0.0",
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := l.api.postJSON(ctx, l.baseURL+"/ugcPosts", headers, body, &resp); err != nil {
		return nil, err
	}

	return &dispatch.PublishOutcome{
		PostID:      resp.ID,
		URL:         "https://www.linkedin.com/feed/update/" + resp.ID,
		CompletedAt: time.Now(),
	}, nil
}
