package events

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Type names an event. It is also the last MQTT topic segment.
type Type string

// Event types.
const (
	DoorToggled    Type = "door.toggled"
	DoorFailed     Type = "door.failed"
	UserRegistered Type = "user.registered"
)

// Channels that WebSocket clients subscribe to.
const (
	ChannelDoor = "door"
	ChannelUser = "user"
)

// Sources identify what triggered an event.
const (
	SourceAPI = "api"
	SourceCLI = "cli"
)

// Event is one observable occurrence.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`

	// Door events.
	Pin        int     `json:"pin,omitempty"`
	HoldMS     int64   `json:"hold_ms,omitempty"`
	DurationMS float64 `json:"duration_ms,omitempty"`
	Error      string  `json:"error,omitempty"`

	// KeyID fingerprints the access key involved. Events leave the
	// process, so the key itself is never carried.
	KeyID string `json:"key_id,omitempty"`
	Name  string `json:"name,omitempty"`
}

// keyIDBytes is how much of the SHA-256 digest KeyFingerprint keeps.
const keyIDBytes = 6

// KeyFingerprint returns a short stable identifier for key that cannot be
// used in its place. An empty key gives "".
func KeyFingerprint(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:keyIDBytes])
}

// Channel returns the WebSocket channel the event belongs to.
func (e Event) Channel() string {
	if e.Type == UserRegistered {
		return ChannelUser
	}
	return ChannelDoor
}

// Duration returns DurationMS as a time.Duration.
func (e Event) Duration() time.Duration {
	return time.Duration(e.DurationMS * float64(time.Millisecond))
}

// Hold returns HoldMS as a time.Duration.
func (e Event) Hold() time.Duration {
	return time.Duration(e.HoldMS) * time.Millisecond
}

// Toggled builds a door event for a pulse that took took. A nil err gives
// DoorToggled, anything else DoorFailed.
func Toggled(source, key string, pin int, hold, took time.Duration, err error) Event {
	e := Event{
		Type:       DoorToggled,
		Source:     source,
		KeyID:      KeyFingerprint(key),
		Pin:        pin,
		HoldMS:     hold.Milliseconds(),
		DurationMS: float64(took) / float64(time.Millisecond),
	}
	if err != nil {
		e.Type = DoorFailed
		e.Error = err.Error()
	}
	return e
}

// Registered builds a UserRegistered event.
func Registered(source, key, name string) Event {
	return Event{Type: UserRegistered, Source: source, KeyID: KeyFingerprint(key), Name: name}
}

func (e *Event) fill() {
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}
