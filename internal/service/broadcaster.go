package service

// Role identifies which kind of client a connection belongs to.
type Role string

const (
	RoleDisplay Role = "display"
	RolePlayer  Role = "player"
	RoleAdmin   Role = "admin"
)

// Broadcaster pushes out-of-band notices to connected clients (avoids import cycle).
// Session snapshots themselves travel through the store subscription.
type Broadcaster interface {
	BroadcastToRole(sessionID string, role Role, msgType string, payload interface{})
	BroadcastToPlayer(sessionID, playerID string, msgType string, payload interface{})
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastToRole(string, Role, string, interface{})       {}
func (nopBroadcaster) BroadcastToPlayer(string, string, string, interface{}) {}
