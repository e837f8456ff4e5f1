package types

// Link summarises bus health in motors/state: down when no controller
// answered the last discovery, degraded when sticky error bits are set.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

// OKReply answers a motors/control request that was applied.
type OKReply struct {
	OK bool `json:"ok"`
}

// ErrorReply carries the errcode string ("busy", "invalid_params", ...) of a
// refused control request.
type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
