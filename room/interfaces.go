package room

import "github.com/wfunc/partygame/network"

// Broadcaster delivers room output to clients.
// This is defined here to break the import cycle between room and broadcast.
type Broadcaster interface {
	Broadcast(roomID string, msg network.Outbound) error
	SendTo(roomID, clientID string, msg network.Outbound) error
}
