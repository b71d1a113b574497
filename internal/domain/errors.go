package domain

import "errors"

var (
	ErrBadEnvelope         = errors.New("malformed message envelope")
	ErrNotJoined           = errors.New("connection has not joined a room")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrRoomOccupied        = errors.New("room already has a producer")
	ErrNotProducer         = errors.New("sender is not the registered producer")
	ErrWidgetTokenNotFound = errors.New("widget token not found")
	ErrPresetNotFound      = errors.New("preset not found")
	ErrSessionNotFound     = errors.New("session not found")
)
