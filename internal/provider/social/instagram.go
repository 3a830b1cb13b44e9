package social

import (
	"context"
	"net/url"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
)

// instagram publishes through the Graph API's two-step container flow:
// create a media container for the asset, then publish the container.
type instagram struct {
	name        string
	userID      string
	accessToken string
	baseURL     string
	api         *apiClient
}

func newInstagram(name string, creds map[string]string) (*instagram, error) {
	userID, err := credential(creds, "user_id")
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
	return &instagram{name: name, userID: userID, accessToken: token, baseURL: baseURL, api: newAPIClient(name)}, nil
}

func (i *instagram) Kind() string { return KindInstagram }

// Instagram cannot publish bare text; every post needs a media asset.
func (i *instagram) CheckPayload(p dispatch.PublishPayload) []string {
	if len(p.Media) == 0 {
		return []string{"media_required"}
	}
	return nil
}

func (i *instagram) Publish(ctx context.Context, p dispatch.PublishPayload) (*dispatch.PublishOutcome, error) {
	media, ok := firstMedia(p, "")
	if !ok {
		return nil, dispatch.NewError(dispatch.KindClient, i.name, "payload has no media")
	}

	// Sub-call 1: create the media container.
	form := url.Values{}
	if media.Kind == "video" {
		form.Set("media_type", "REELS")
		form.Set("video_url", media.URL)
	} else {
		form.Set("image_url", media.URL)
	}
	form.Set("caption", composeMessage(p))
	form.Set("access_token", i.accessToken)

	var container struct {
		ID string `json:"id"`
	}
	if err := i.api.postForm(ctx, i.baseURL+"/"+i.userID+"/media", form, &container); err != nil {
		return nil, err
	}
	if container.ID == "" {
		return nil, dispatch.NewError(dispatch.KindServer, i.name, "container creation returned no id")
	}

	// Sub-call 2: publish the container.
	pub := url.Values{}
	pub.Set("creation_id", container.ID)
	pub.Set("access_token", i.accessToken)

	var published struct {
		ID string `json:"id"`
	}
	if err := i.api.postForm(ctx, i.baseURL+"/"+i.userID+"/media_publish", pub, &published); err != nil {
		return nil, err
	}

	return &dispatch.PublishOutcome{
		PostID:      published.ID,
		URL:         "https://www.instagram.com/p/" + published.ID,
		CompletedAt: time.Now(),
	}, nil
}
