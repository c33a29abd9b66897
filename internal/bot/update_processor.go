package bot

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	UpdateTimeout = 5 * time.Minute

	updatesBuffer = 100
)

type traceKey struct{}

type UpdateProcessor struct {
	updateHandlers []Handler
	now            func() time.Time
}

func NewUpdateProcessor(handlers ...Handler) *UpdateProcessor {
	enabled := make([]Handler, 0, len(handlers))
	for _, handler := range handlers {
		if handler == nil {
			log.Warn("skipping nil update handler")
			continue
		}
		enabled = append(enabled, handler)
	}
	return &UpdateProcessor{
		updateHandlers: enabled,
		now:            time.Now,
	}
}

// Process hands the update to every handler in order until one of them
// declines to proceed. Updates older than UpdateTimeout are dropped.
func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) error {
	if u == nil {
		return errors.New("update is nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	updateTime := UpdateTime(u, up.now())
	if age := up.now().Sub(updateTime); age > UpdateTimeout {
		log.WithFields(log.Fields{
			"update_time": updateTime,
			"age":         age,
		}).Debug("skipping outdated update")
		return nil
	}

	chat := u.FromChat()
	if chat == nil {
		switch {
		case u.MyChatMember != nil:
			chat = &u.MyChatMember.Chat
		case u.ChatMember != nil:
			chat = &u.ChatMember.Chat
		}
	}

	user := u.SentFrom()
	if user == nil {
		switch {
		case u.MyChatMember != nil:
			user = &u.MyChatMember.From
		case u.ChatMember != nil:
			user = &u.ChatMember.From
		}
	}

	ctx = context.WithValue(ctx, traceKey{}, uuid.New())
	for _, handler := range up.updateHandlers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		proceed, err := handler.Handle(ctx, u, chat, user)
		if err != nil {
			return errors.WithMessage(err, "handling error")
		}
		if !proceed {
			log.WithField("trace_id", TraceID(ctx)).Trace("not proceeding")
			return nil
		}
	}
	return nil
}

// TraceID returns the correlation id assigned to the update being processed.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// UpdateTime is the platform timestamp of the update, or fallback when the
// update carries none.
func UpdateTime(u *api.Update, fallback time.Time) time.Time {
	switch {
	case u.Message != nil:
		return time.Unix(int64(u.Message.Date), 0)
	case u.EditedMessage != nil:
		return time.Unix(int64(u.EditedMessage.Date), 0)
	case u.ChatMember != nil:
		return time.Unix(int64(u.ChatMember.Date), 0)
	case u.MyChatMember != nil:
		return time.Unix(int64(u.MyChatMember.Date), 0)
	}
	return fallback
}

func GetUpdatesChans(ctx context.Context, source UpdatesSource, config api.UpdateConfig) (api.UpdatesChannel, chan error) {
	ch := make(chan api.Update, updatesBuffer)
	chErr := make(chan error, 1)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			select {
			case <-ctx.Done():
				chErr <- ctx.Err()
				return
			default:
			}

			updates, err := source.GetUpdates(config)
			if err != nil {
				chErr <- err
				return
			}

			for _, update := range updates {
				if update.UpdateID < config.Offset {
					continue
				}
				config.Offset = update.UpdateID + 1
				select {
				case ch <- update:
				case <-ctx.Done():
					chErr <- ctx.Err()
					return
				}
			}
		}
	}()

	return ch, chErr
}

func GetUN(user *api.User) string {
	if user == nil {
		return ""
	}
	userName := user.UserName
	if len(userName) == 0 {
		userName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	return userName
}

// MessageText is what the detectors read: the text, or the caption of a
// media message.
func MessageText(msg *api.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}
