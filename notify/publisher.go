package notify

import (
	"context"
	"errors"
	"fmt"

	"squares/listing"
	"squares/moderation"
	"squares/outbox"
)

// ErrUnknownTopic signals an outbox message with no toast mapping.
var ErrUnknownTopic = errors.New("notify: unknown topic")

type statusChangedPayload struct {
	PropertyID string `json:"property_id"`
	Title      string `json:"title"`
	Previous   string `json:"previous"`
	Next       string `json:"next"`
	IsRevert   bool   `json:"is_revert"`
	CustomerID string `json:"customer_id"`
}

type moderatedPayload struct {
	PropertyID string `json:"property_id"`
	Title      string `json:"title"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason"`
}

// OutboxPublisher turns committed outbox messages into toasts on a Sink.
// It satisfies outbox.Publisher.
type OutboxPublisher struct {
	sink Sink
}

func NewOutboxPublisher(sink Sink) *OutboxPublisher {
	return &OutboxPublisher{sink: sink}
}

func (p *OutboxPublisher) Publish(ctx context.Context, msg outbox.Message) error {
	t, err := ToastFor(msg)
	if err != nil {
		return err
	}
	p.sink.Notify(ctx, t)
	return nil
}

// ToastFor maps an outbox message to its toast.
func ToastFor(msg outbox.Message) (Toast, error) {
	switch msg.Topic {
	case listing.OutboxTopicStatusChanged:
		var p statusChangedPayload
		if err := msg.Decode(&p); err != nil {
			return Toast{}, err
		}
		next := listing.Status(p.Next)
		text := fmt.Sprintf("%s marked as %s", displayTitle(p.Title), listing.LabelFor(next))
		if p.IsRevert {
			text = fmt.Sprintf("%s is %s again", displayTitle(p.Title), listing.LabelFor(next))
		}
		return Toast{
			ID:         msg.ID,
			Level:      LevelSuccess,
			Title:      "Status updated",
			Message:    text,
			PropertyID: p.PropertyID,
			CreatedAt:  msg.CreatedAt,
		}, nil
	case moderation.OutboxTopicModerated:
		var p moderatedPayload
		if err := msg.Decode(&p); err != nil {
			return Toast{}, err
		}
		t := Toast{
			ID:         msg.ID,
			Level:      LevelSuccess,
			Title:      "Listing approved",
			Message:    fmt.Sprintf("%s is now available", displayTitle(p.Title)),
			PropertyID: p.PropertyID,
			CreatedAt:  msg.CreatedAt,
		}
		if p.Decision == string(moderation.DecisionReject) {
			t.Level = LevelWarning
			t.Title = "Listing rejected"
			t.Message = fmt.Sprintf("%s was rejected: %s", displayTitle(p.Title), p.Reason)
		}
		return t, nil
	default:
		return Toast{}, fmt.Errorf("%w: %s", ErrUnknownTopic, msg.Topic)
	}
}

func displayTitle(title string) string {
	if title == "" {
		return "Property"
	}
	return title
}
