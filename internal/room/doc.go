// Package room implements the room hub: one producer pushes state and events
// into a room, any number of consumers mirror them. The hub stamps relayed
// messages with a per-room sequence number and retains the latest state so
// late-joining consumers start from a snapshot.
package room
