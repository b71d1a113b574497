package domain

// ChangeEvent signals that backing data behind one or more widget tokens may
// have changed. Exactly one field is set; the bridge resolves it to tokens.
type ChangeEvent struct {
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	RoomID    string `json:"roomId,omitempty"`
	PresetID  string `json:"presetId,omitempty"`
}

// ChangePublisher accepts change events emitted after a mutating transaction
// commits. Publishing is best-effort and must never block the caller.
type ChangePublisher interface {
	Publish(ev ChangeEvent)
}

// TokenValidator checks a join token presented on the room channel.
type TokenValidator interface {
	Validate(token string) error
}
