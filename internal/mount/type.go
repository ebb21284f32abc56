package mount

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Flags is the behavior flag-set of a mount type.
type Flags uint8

const (
	FlagTeamColors Flags = 1 << iota
	FlagBackpack
	FlagCarpet
	FlagAirplane
	FlagVehicle
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagTeamColors, "team_colors"},
	{FlagBackpack, "backpack"},
	{FlagCarpet, "carpet"},
	{FlagAirplane, "airplane"},
	{FlagVehicle, "vehicle"},
}

// ParseFlag resolves a flag by its catalog name.
func ParseFlag(name string) (Flags, error) {
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown mount flag %q", name)
}

// Has reports whether every bit of flag is set.
func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

func (f Flags) String() string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, ",")
}

// UnmarshalYAML decodes a sequence of flag names.
func (f *Flags) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	if err := node.Decode(&names); err != nil {
		return fmt.Errorf("line %d: flags must be a list of names: %w", node.Line, err)
	}
	var out Flags
	for _, name := range names {
		flag, err := ParseFlag(name)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		out |= flag
	}
	*f = out
	return nil
}

// Placement is the positioning rule applied to a mount each tick.
type Placement uint8

const (
	PlaceFollow Placement = iota
	PlaceBackpack
	PlaceCarpet
	PlaceAirplane
	PlaceVehicle
)

func (p Placement) String() string {
	switch p {
	case PlaceBackpack:
		return "backpack"
	case PlaceCarpet:
		return "carpet"
	case PlaceAirplane:
		return "airplane"
	case PlaceVehicle:
		return "vehicle"
	default:
		return "follow"
	}
}

// Placement resolves the positioning rule. When several placement flags are
// set, backpack wins over carpet, carpet over airplane, airplane over vehicle.
func (f Flags) Placement() Placement {
	switch {
	case f.Has(FlagBackpack):
		return PlaceBackpack
	case f.Has(FlagCarpet):
		return PlaceCarpet
	case f.Has(FlagAirplane):
		return PlaceAirplane
	case f.Has(FlagVehicle):
		return PlaceVehicle
	default:
		return PlaceFollow
	}
}

// Offsets shift the mount relative to the player along the yaw basis. Back
// moves against the facing direction, Side along the right vector and Up
// along world Z.
type Offsets struct {
	Back float64 `yaml:"back"`
	Side float64 `yaml:"side"`
	Up   float64 `yaml:"up"`
}

// DefaultOffsets returns the offsets used when a type leaves them unset.
func DefaultOffsets(p Placement) Offsets {
	switch p {
	case PlaceBackpack:
		return Offsets{Back: 10, Side: 4, Up: 48}
	case PlaceCarpet:
		return Offsets{Back: 8, Side: 4, Up: -6}
	case PlaceAirplane:
		return Offsets{Side: 12}
	case PlaceVehicle:
		return Offsets{Up: -4}
	default:
		return Offsets{}
	}
}

// Type is one mount variant: a model plus its behavior flags and offsets.
type Type struct {
	Name    string   `yaml:"name"`
	Model   string   `yaml:"model"`
	Scale   float64  `yaml:"scale"`
	Weight  int      `yaml:"weight"`
	Flags   Flags    `yaml:"flags"`
	Offsets *Offsets `yaml:"offsets"`
	Sound   string   `yaml:"sound"`
}

// Placement is shorthand for t.Flags.Placement().
func (t Type) Placement() Placement {
	return t.Flags.Placement()
}

// Offset returns the configured offsets or the placement defaults.
func (t Type) Offset() Offsets {
	if t.Offsets != nil {
		return *t.Offsets
	}
	return DefaultOffsets(t.Placement())
}
