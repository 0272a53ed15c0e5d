package types

// Client -> Server
// connect (sent once, right after the socket opens):
//   data: { platform: "admin-dashboard", role: "admin" }
//
// heartbeat (every 30s while open): {}

// Server -> Client
// init:
//   stats: { connectionCount, activeUsers, activeCourses,
//            recentInteractions: Interaction[], recentScoreChanges: ScoreChange[] }
//
// stats_update:
//   connectionCount, activeUsers, activeCourses (top level, not nested)
//
// interaction_update:
//   data: Interaction
//
// score_changes_update:
//   data: ScoreChange
//
// heartbeat (optional echo): ignored

const (
	TypeConnect            = "connect"
	TypeHeartbeat          = "heartbeat"
	TypeInit               = "init"
	TypeStatsUpdate        = "stats_update"
	TypeInteractionUpdate  = "interaction_update"
	TypeScoreChangesUpdate = "score_changes_update"
)

const (
	PlatformAdminDashboard = "admin-dashboard"
	RoleAdmin              = "admin"
)

type ClientMessage struct {
	Type string       `json:"type"`
	Data *ConnectData `json:"data,omitempty"`
}

type ConnectData struct {
	Platform string `json:"platform"`
	Role     string `json:"role"`
}

func ConnectMessage() ClientMessage {
	return ClientMessage{
		Type: TypeConnect,
		Data: &ConnectData{Platform: PlatformAdminDashboard, Role: RoleAdmin},
	}
}

func HeartbeatMessage() ClientMessage {
	return ClientMessage{Type: TypeHeartbeat}
}
