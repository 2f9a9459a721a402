package entity

import "time"

type SessionState int

const (
	SessionNormal SessionState = iota
	SessionBanned
)

func (s SessionState) String() string {
	switch s {
	case SessionBanned:
		return "banned"
	default:
		return "normal"
	}
}

// ClientSession is the throttle record of one client identity.
// A zero BannedUntil means the client has never been fully banned.
type ClientSession struct {
	WindowStart time.Time `json:"window_start"`
	HitCount    int       `json:"hit_count"`
	BanCount    int       `json:"ban_count"`
	BannedUntil time.Time `json:"banned_until"`
}

func NewClientSession(now time.Time) ClientSession {
	return ClientSession{WindowStart: now}
}

func (s ClientSession) State(now time.Time) SessionState {
	if s.BannedUntil.After(now) {
		return SessionBanned
	}
	return SessionNormal
}
