package listener

import (
	"context"
	"encoding/json"
	"time"

	"social-realtime/event"
	"social-realtime/model"

	"github.com/pkg/errors"
	"github.com/zishang520/engine.io/v2/log"
)

var apiLog = log.NewLog("realtime:listener-api")

// Actions published by the CRUD api on the "api" queue.
const (
	ActionNotificationCreate = "notification.create"
	ActionNotificationRead   = "notification.read"
	ActionNotificationDelete = "notification.delete"
)

type Fanout interface {
	Notify(ctx context.Context, recipientID string, n *model.Notification) error
	PushUnreadCount(ctx context.Context, userID string)
}

type NotificationPayload struct {
	RecipientID string `json:"recipientId"`
	SenderID    string `json:"senderId"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	Link        string `json:"link"`
	ChatID      string `json:"chatId"`
}

// Api turns CRUD api events into live notification pushes.
type Api struct {
	Channel chan event.EventChannelData

	fanout  Fanout
	timeout time.Duration
}

func NewApi(fanout Fanout, timeout time.Duration) *Api {
	return &Api{
		Channel: make(chan event.EventChannelData),
		fanout:  fanout,
		timeout: timeout,
	}
}

// Run handles events until the channel is closed.
func (a *Api) Run() {
	for data := range a.Channel {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.Handle(ctx, data); err != nil {
			apiLog.Error("api event %s failed: %v", data.Action, err)
		}
		cancel()
	}
}

func (a *Api) Handle(ctx context.Context, data event.EventChannelData) error {
	payload := NotificationPayload{}
	if err := json.Unmarshal(data.Data, &payload); err != nil {
		return errors.Wrapf(err, "decode %s", data.Action)
	}
	if payload.RecipientID == "" {
		return errors.Errorf("%s without recipientId", data.Action)
	}

	if !data.Out.Send {
		apiLog.Debug("replayed %s for %s without sending", data.Action, payload.RecipientID)
		return nil
	}

	switch data.Action {
	case ActionNotificationCreate:
		return a.fanout.Notify(ctx, payload.RecipientID, &model.Notification{
			SenderID: payload.SenderID,
			Type:     payload.Type,
			Title:    payload.Title,
			Body:     payload.Body,
			Link:     payload.Link,
			ChatID:   payload.ChatID,
		})
	case ActionNotificationRead, ActionNotificationDelete:
		a.fanout.PushUnreadCount(ctx, payload.RecipientID)
	default:
		apiLog.Debug("ignoring api event %s", data.Action)
	}
	return nil
}
