package social

import (
	"context"
	"net/url"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
)

const facebookGraphURL = "https://graph.facebook.com/v19.0"

// facebook publishes to a page feed via the Graph API. Posts with an image
// go through the page's /photos edge instead of /feed.
type facebook struct {
	name        string
	pageID      string
	accessToken string
	baseURL     string
	api         *apiClient
}

func newFacebook(name string, creds map[string]string) (*facebook, error) {
	pageID, err := credential(creds, "page_id")
	if err != nil {
		return nil, err
	}
	token, err := credential(creds, "access_token")
	if err != nil {
		return nil, err
	}
	baseURL := creds["base_url"]
	if baseURL == "" {
		baseURL = facebookGraphURL
	}
	return &facebook{name: name, pageID: pageID, accessToken: token, baseURL: baseURL, api: newAPIClient(name)}, nil
}

func (f *facebook) Kind() string { return KindFacebook }

func (f *facebook) CheckPayload(p dispatch.PublishPayload) []string { return nil }

func (f *facebook) Publish(ctx context.Context, p dispatch.PublishPayload) (*dispatch.PublishOutcome, error) {
	message := composeMessage(p)

	var resp struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}

	if media, ok := firstMedia(p, "image"); ok {
		form := url.Values{}
		form.Set("url", media.URL)
		form.Set("caption", message)
		form.Set("access_token", f.accessToken)
		if err := f.api.postForm(ctx, f.baseURL+"/"+f.pageID+"/photos", form, &resp); err != nil {
			return nil, err
		}
	} else {
		form := url.Values{}
		form.Set("message", message)
		form.Set("access_token", f.accessToken)
		if err := f.api.postForm(ctx, f.baseURL+"/"+f.pageID+"/feed", form, &resp); err != nil {
			return nil, err
		}
	}

	id := resp.PostID
	if id == "" {
		id = resp.ID
	}
	return &dispatch.PublishOutcome{
		PostID:      id,
		URL:         "https://www.facebook.com/" + id,
		CompletedAt: time.Now(),
	}, nil
}
