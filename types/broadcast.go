package types

import (
	"fmt"
	"time"
)

// DeliveryMode distinguishes broadcast items handled by the local display
// pipeline from ones handed to the system-level push channel.
type DeliveryMode string

const (
	DeliveryModeLocal  DeliveryMode = "local"
	DeliveryModeSystem DeliveryMode = "system"
)

// BroadcastItem is an administrator push message pulled from the broadcast
// queue. The queue has at-least-once semantics; the dedup cache turns local
// delivery into at-most-once.
type BroadcastItem struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Message   string       `json:"message"`
	Mode      DeliveryMode `json:"mode"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Validate checks the required fields. Malformed items are logged and
// skipped, never delivered and never recorded as seen.
func (b *BroadcastItem) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("broadcast item has no id")
	}
	if b.Title == "" {
		return fmt.Errorf("broadcast item %s has no title", b.ID)
	}
	if b.Message == "" {
		return fmt.Errorf("broadcast item %s has no message", b.ID)
	}
	return nil
}

// ChangeType tags a change event from the broadcast queue subscription.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// ChangeEvent is one entry in the subscription stream, delivered in
// store-assigned (ascending creation) order.
type ChangeEvent struct {
	Type ChangeType    `json:"type"`
	Item BroadcastItem `json:"item"`
}
