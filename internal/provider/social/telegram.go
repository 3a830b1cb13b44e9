package social

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// telegram posts to a channel or group through the Bot API. Unlike the REST
// adapters it rides on telebot; the bot is built offline so construction
// never touches the network.
type telegram struct {
	name string
	chat chatRecipient
	bot  *tele.Bot
	log  logx.Logger
}

// chatRecipient lets both numeric chat IDs and "@channel" names act as a
// telebot recipient.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

func newTelegram(name string, creds map[string]string, log logx.Logger) (*telegram, error) {
	token, err := credential(creds, "token")
	if err != nil {
		return nil, err
	}
	chat, err := credential(creds, "chat_id")
	if err != nil {
		return nil, err
	}

	bot, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, err
	}
	return &telegram{name: name, chat: chatRecipient(chat), bot: bot, log: log}, nil
}

func (t *telegram) Kind() string { return KindTelegram }

func (t *telegram) CheckPayload(p dispatch.PublishPayload) []string {
	// Bot API caps plain messages at 4096 chars; captions are shorter but
	// media posts fall back to a separate text message when needed.
	if len(p.Media) == 0 && len(composeMessage(p)) > 4096 {
		return []string{"content_exceeds_4096"}
	}
	return nil
}

func (t *telegram) Publish(ctx context.Context, p dispatch.PublishPayload) (*dispatch.PublishOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, dispatch.Classify(t.name, err)
	}

	message := composeMessage(p)

	var what any = message
	if media, ok := firstMedia(p, "image"); ok {
		what = &tele.Photo{File: tele.FromURL(media.URL), Caption: message}
	} else if media, ok := firstMedia(p, "video"); ok {
		what = &tele.Video{File: tele.FromURL(media.URL), Caption: message}
	}

	msg, err := t.bot.Send(t.chat, what)
	if err != nil {
		return nil, t.classify(err)
	}

	return &dispatch.PublishOutcome{
		PostID:      strconv.Itoa(msg.ID),
		URL:         t.postURL(msg.ID),
		CompletedAt: time.Now(),
	}, nil
}

// postURL is only derivable for public @channels.
func (t *telegram) postURL(messageID int) string {
	chat := string(t.chat)
	if !strings.HasPrefix(chat, "@") {
		return ""
	}
	return "https://t.me/" + strings.TrimPrefix(chat, "@") + "/" + strconv.Itoa(messageID)
}

// classify maps Bot API failures onto the dispatch taxonomy. Telebot carries
// the HTTP status on its error values; flood control is surfaced separately.
func (t *telegram) classify(err error) error {
	var flood *tele.FloodError
	if errors.As(err, &flood) {
		return dispatch.NewError(dispatch.KindRateLimit, t.name,
			"flood control, retry after "+strconv.Itoa(flood.RetryAfter)+"s")
	}
	var apierr *tele.Error
	if errors.As(err, &apierr) {
		return dispatch.FromStatus(t.name, apierr.Code, apierr.Description)
	}
	return dispatch.Classify(t.name, err)
}
