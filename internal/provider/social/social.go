// Package social contains the publish-side provider adapters.
//
// Each adapter translates a dispatch.PublishPayload onto one network's wire
// shape (including any media-upload sub-calls) and normalizes the resulting
// post identifier/URL into a dispatch.PublishOutcome. Adapters never retry;
// they classify errors and leave the rest to the dispatch core.
package social

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// Adapter kinds the factory knows how to build.
const (
	KindFacebook  = "facebook"
	KindInstagram = "instagram"
	KindLinkedIn  = "linkedin"
	KindTikTok    = "tiktok"
	KindTwitter   = "twitter"
	KindTelegram  = "telegram"
)

// Factory builds publish adapters by kind. It implements
// dispatch.AdapterFactory.
type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Build(name string, cfg dispatch.TargetConfig, log logx.Logger) (dispatch.Publisher, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	creds := cfg.Credentials
	switch kind {
	case KindFacebook:
		return newFacebook(name, creds)
	case KindInstagram:
		return newInstagram(name, creds)
	case KindLinkedIn:
		return newLinkedIn(name, creds)
	case KindTikTok:
		return newTikTok(name, creds)
	case KindTwitter:
		return newTwitter(name, creds)
	case KindTelegram:
		return newTelegram(name, creds, log)
	default:
		return nil, fmt.Errorf("unknown publish target kind: %q", cfg.Kind)
	}
}

// Kinds enumerates the static capability catalog, sorted.
func (f *Factory) Kinds() []string {
	kinds := []string{KindFacebook, KindInstagram, KindLinkedIn, KindTikTok, KindTwitter, KindTelegram}
	sort.Strings(kinds)
	return kinds
}

// credential fetches a required opaque configuration value.
func credential(creds map[string]string, key string) (string, error) {
	v := strings.TrimSpace(creds[key])
	if v == "" {
		return "", fmt.Errorf("missing credential %q", key)
	}
	return v, nil
}

// composeMessage renders content plus hashtags the way most feed APIs expect:
// body text, blank line, space-separated tags.
func composeMessage(p dispatch.PublishPayload) string {
	if len(p.Hashtags) == 0 {
		return p.Content
	}
	tags := make([]string, 0, len(p.Hashtags))
	for _, h := range p.Hashtags {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.HasPrefix(h, "#") {
			h = "#" + h
		}
		tags = append(tags, h)
	}
	if len(tags) == 0 {
		return p.Content
	}
	return p.Content + "\n\n" + strings.Join(tags, " ")
}

// firstMedia returns the first media reference of the given kind
// ("" matches any).
func firstMedia(p dispatch.PublishPayload, kind string) (dispatch.MediaRef, bool) {
	for _, m := range p.Media {
		if kind == "" || m.Kind == kind {
			return m, true
		}
	}
	return dispatch.MediaRef{}, false
}
