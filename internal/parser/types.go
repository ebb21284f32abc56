package parser

import "github.com/OCAP2/parachute/pkg/core"

// PlayerDeath is a parsed :PLAYER:DEATH: event.
type PlayerDeath struct {
	Victim   int
	Attacker int // -1 for world damage
	Weapon   string
}

// MapStart is a parsed :MAP:START: event.
type MapStart struct {
	Name string
}

// RoundEnd is a parsed :ROUND:END: event.
type RoundEnd struct {
	Winner core.Team
	Reason string
}

// LogLine is a parsed :LOG: event.
type LogLine struct {
	Function string
	Message  string
	Level    string
}
