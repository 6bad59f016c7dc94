package mailer

import (
	"context"
	"strings"
)

const (
	Queue               = "mailer"
	ActionMissedMessage = "missed_message"
)

type Publisher interface {
	Emit(ctx context.Context, service, action string, data any) error
}

// Job is the payload of a missed_message event. The mail worker renders the
// template from it.
type Job struct {
	To            string `json:"to"`
	RecipientName string `json:"recipientName"`
	SenderName    string `json:"senderName"`
	Snapshot      string `json:"snapshot"`
	ChatID        string `json:"chatId"`
	Link          string `json:"link"`
}

// QueueSender hands missed-message emails to the mail worker over the
// message bus.
type QueueSender struct {
	publisher   Publisher
	frontendURL string
}

func NewQueueSender(publisher Publisher, frontendURL string) *QueueSender {
	return &QueueSender{publisher: publisher, frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (q *QueueSender) SendMissedMessage(ctx context.Context, msg MissedMessage) error {
	return q.publisher.Emit(ctx, Queue, ActionMissedMessage, Job{
		To:            msg.RecipientEmail,
		RecipientName: msg.RecipientName,
		SenderName:    msg.SenderName,
		Snapshot:      msg.Snapshot,
		ChatID:        msg.ChatID,
		Link:          q.frontendURL + "/messages/" + msg.ChatID,
	})
}
