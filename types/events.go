package types

import "time"

// PressKitViewedEvent is published each time a view is recorded.
type PressKitViewedEvent struct {
	PressKitID string    `json:"press_kit_id"`
	OwnerID    string    `json:"owner_id"`
	Slug       string    `json:"slug"`
	ViewCount  int64     `json:"view_count"`
	ViewedAt   time.Time `json:"viewed_at"`
}

// EventTypePressKitViewed is the event_type attribute of PressKitViewedEvent.
const EventTypePressKitViewed = "press_kit.viewed"
