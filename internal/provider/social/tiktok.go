package social

import (
	"context"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
)

const tiktokAPIURL = "https://open.tiktokapis.com/v2"

// tiktok publishes via the Content Posting API's PULL_FROM_URL flow: the
// init call hands TikTok a video URL to fetch, which is the whole upload.
type tiktok struct {
	name        string
	accessToken string
	baseURL     string
	api         *apiClient
}

func newTikTok(name string, creds map[string]string) (*tiktok, error) {
	token, err := credential(creds, "access_token")
	if err != nil {
		return nil, err
	}
	baseURL := creds["base_url"]
	if baseURL == "" {
		baseURL = tiktokAPIURL
	}
	return &tiktok{name: name, accessToken: token, baseURL: baseURL, api: newAPIClient(name)}, nil
}

func (t *tiktok) Kind() string { return KindTikTok }

// TikTok is video-only.
func (t *tiktok) CheckPayload(p dispatch.PublishPayload) []string {
	if _, ok := firstMedia(p, "video"); !ok {
		return []string{"video_required"}
	}
	return nil
}

func (t *tiktok) Publish(ctx context.Context, p dispatch.PublishPayload) (*dispatch.PublishOutcome, error) {
	video, ok := firstMedia(p, "video")
	if !ok {
		return nil, dispatch.NewError(dispatch.KindClient, t.name, "payload has no video media")
	}

	body := map[string]any{
		"post_info": map[string]any{
			"title":           composeMessage(p),
			"privacy_level":   "PUBLIC_TO_EVERYONE",
			"disable_comment": false,
		},
		"source_info": map[string]any{
			"source":    "PULL_FROM_URL",
			"video_url": video.URL,
		},
	}

	headers := map[string]string{"Authorization": "Bearer " + t.accessToken}

	var resp struct {
		Data struct {
			PublishID string `json:"publish_id"`
		} `json:"data"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := t.api.postJSON(ctx, t.baseURL+"/post/publish/video/init/", headers, body, &resp); err != nil {
		return nil, err
	}
	// TikTok reports some failures inside a 200 envelope.
	if resp.Error.Code != "" && resp.Error.Code != "ok" {
		return nil, dispatch.NewError(dispatch.KindServer, t.name, resp.Error.Code+": "+resp.Error.Message)
	}

	return &dispatch.PublishOutcome{
		PostID:      resp.Data.PublishID,
		CompletedAt: time.Now(),
	}, nil
}
