package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OCAP2/parachute/internal/util"
	"github.com/OCAP2/parachute/pkg/core"
)

// ParsePlayerDeath parses victim slot, attacker slot and weapon. Only the
// victim is required.
func (p *Parser) ParsePlayerDeath(data []string) (PlayerDeath, error) {
	util.CleanArgs(data)
	death := PlayerDeath{Attacker: -1}

	victim, err := p.slotArg(data, 0, "victim slot")
	if err != nil {
		return death, err
	}
	death.Victim = victim

	if len(data) > 1 && data[1] != "" {
		attacker, err := p.slotArg(data, 1, "attacker slot")
		if err != nil {
			return death, err
		}
		if attacker >= 0 {
			death.Attacker = attacker
		}
	}
	if len(data) > 2 {
		death.Weapon = data[2]
	}
	return death, nil
}

// ParseMapStart parses the map name.
func (p *Parser) ParseMapStart(data []string) (MapStart, error) {
	util.CleanArgs(data)
	name, err := p.arg(data, 0, "map name")
	if err != nil {
		return MapStart{}, err
	}
	if name == "" {
		return MapStart{}, errors.New("empty map name")
	}
	return MapStart{Name: name}, nil
}

// ParseRoundEnd parses the winning team and the end reason. Both are
// optional; a missing winner is TeamNone.
func (p *Parser) ParseRoundEnd(data []string) (RoundEnd, error) {
	util.CleanArgs(data)
	var end RoundEnd
	if len(data) > 0 && data[0] != "" {
		team, err := parseIntFromFloat(data[0])
		if err != nil {
			return end, fmt.Errorf("error converting winner to int: %w", err)
		}
		if team < int64(core.TeamNone) || team > int64(core.TeamDefenders) {
			return end, fmt.Errorf("unknown team %d", team)
		}
		end.Winner = core.Team(team)
	}
	if len(data) > 1 {
		end.Reason = data[1]
	}
	return end, nil
}

// ParseLog parses function, message and level of a forwarded log line.
// A single argument is treated as an info message.
func (p *Parser) ParseLog(data []string) (LogLine, error) {
	util.CleanArgs(data)
	switch len(data) {
	case 0:
		return LogLine{}, errors.New("empty log line")
	case 1:
		return LogLine{Message: data[0], Level: "INFO"}, nil
	case 2:
		return LogLine{Function: data[0], Message: data[1], Level: "INFO"}, nil
	}
	return LogLine{Function: data[0], Message: data[1], Level: strings.ToUpper(data[2])}, nil
}
