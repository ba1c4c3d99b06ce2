package types

import "time"

// Audience partitions otherwise-identical notification state by recipient
// group. Every read-id set, count and check timestamp is scoped to one
// audience.
type Audience string

const (
	AudienceStudent Audience = "student"
	AudienceClub    Audience = "club"
)

// Audiences lists every known audience, in the order reports render them.
var Audiences = []Audience{AudienceStudent, AudienceClub}

// Valid reports whether a is a known audience.
func (a Audience) Valid() bool {
	return a == AudienceStudent || a == AudienceClub
}

// NotificationRecord is the remote document this engine mutates. IDs are
// store-assigned and stable. ReadAt is set only on the transition to read.
// Payload carries additional fields (category details, deep links) that are
// opaque to the engine.
type NotificationRecord struct {
	ID        string                 `json:"id"`
	Audience  Audience               `json:"audience"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Category  string                 `json:"category,omitempty"`
	Read      bool                   `json:"read"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Patch is a partial document update keyed by field name. Known keys ("read",
// "readAt") map to dedicated columns in the remote store; everything else is
// merged into the opaque payload.
type Patch map[string]interface{}

// ReadPatch builds the patch applied when a notification transitions to read.
func ReadPatch(at time.Time) Patch {
	return Patch{"read": true, "readAt": at}
}
