// Package moderation approves or rejects listings waiting in pending.
package moderation

import (
	"time"

	"squares/listing"
)

// Decision is the moderator's verdict on a pending listing.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// OutboxTopicModerated is published for every decision.
const OutboxTopicModerated = "property.moderated"

// Record is the outcome of one moderation decision.
type Record struct {
	Property listing.Property
	Decision Decision
	Previous listing.Status
	Reason   string
	ActorID  string
	At       time.Time
}
