// pkg/core/flight.go
package core

import "time"

// DetachReason explains why a mount was removed from a player.
type DetachReason string

const (
	DetachIneligible DetachReason = "ineligible"
	DetachDeath      DetachReason = "death"
	DetachDisconnect DetachReason = "disconnect"
	DetachRoundReset DetachReason = "round_reset"
	DetachInvalid    DetachReason = "invalid_handle"
	DetachDisabled   DetachReason = "disabled"
	DetachShutdown   DetachReason = "shutdown"
	DetachReload     DetachReason = "reload"
	DetachAdmin      DetachReason = "admin"
)

// PathSample is one recorded point of a flight path.
type PathSample struct {
	Offset   time.Duration `json:"offset"`
	Position Vector        `json:"position"`
	Speed    float64       `json:"speed"`
}

// FlightSession is one attach→detach cycle of a mount.
type FlightSession struct {
	ID         string        `json:"id"`
	MapName    string        `json:"mapName"`
	Round      int           `json:"round"`
	Slot       int           `json:"slot"`
	PlayerName string        `json:"playerName"`
	Team       Team          `json:"team"`
	MountType  string        `json:"mountType"`
	StartedAt  time.Time     `json:"startedAt"`
	EndedAt    time.Time     `json:"endedAt"`
	Airtime    time.Duration `json:"airtime"`
	MaxSpeed   float64       `json:"maxSpeed"`
	Distance   float64       `json:"distance"`
	Drop       float64       `json:"drop"`
	Reason     DetachReason  `json:"reason"`
	Path       []PathSample  `json:"path"`
}

// MapSession is one load of a map. Stores key recorded flights by it.
type MapSession struct {
	ID        uint      `json:"id"`
	MapName   string    `json:"mapName"`
	StartedAt time.Time `json:"startedAt"`
}

// UploadMetadata describes an exported map session sent to a flight archive.
type UploadMetadata struct {
	MapName   string
	SessionID uint
	Flights   int
	Airtime   time.Duration
	Duration  time.Duration
	Tag       string
}
