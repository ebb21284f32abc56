package mount

import (
	"errors"
	"fmt"
	"image/color"
	"math/rand/v2"
	"time"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/pkg/core"
	"github.com/OCAP2/parachute/pkg/host"
)

var (
	// ErrSpawnFailed is returned when no mount could be created this tick.
	ErrSpawnFailed = errors.New("mount spawn failed")
	// ErrUnknownType is returned when the configured mount type cannot be
	// resolved against the catalog.
	ErrUnknownType = errors.New("unknown mount type")
)

// RandomType selects a weighted random catalog entry per attach.
const RandomType = "random"

// Attachment is a live mount owned by one player.
type Attachment struct {
	Handle host.Handle
	Type   Type
}

// Factory creates and removes mount entities.
type Factory struct {
	entities host.EntityFactory
	catalog  *Catalog
	cfg      config.MountConfig
	rng      *rand.Rand
}

// NewFactory creates a factory. A nil src seeds from the clock.
func NewFactory(entities host.EntityFactory, catalog *Catalog, cfg config.MountConfig, src rand.Source) *Factory {
	if src == nil {
		src = rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)
	}
	return &Factory{
		entities: entities,
		catalog:  catalog,
		cfg:      cfg,
		rng:      rand.New(src),
	}
}

// Build validates cfg, loads its catalog and checks that the configured mount
// type resolves. Errors wrap config.ErrInvalidConfig.
func Build(entities host.EntityFactory, cfg config.MountConfig, src rand.Source) (*Factory, error) {
	catalog, err := resolve(cfg)
	if err != nil {
		return nil, err
	}
	return NewFactory(entities, catalog, cfg, src), nil
}

// Rebuild returns a factory for cfg that spawns through the same host and
// random source.
func (f *Factory) Rebuild(cfg config.MountConfig) (*Factory, error) {
	catalog, err := resolve(cfg)
	if err != nil {
		return nil, err
	}
	return &Factory{entities: f.entities, catalog: catalog, cfg: cfg, rng: f.rng}, nil
}

func resolve(cfg config.MountConfig) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	catalog, err := CatalogFor(cfg)
	if err != nil {
		return nil, err
	}

	var reachable []Type
	switch cfg.MountType {
	case "":
	case RandomType:
		reachable = catalog.Types()
	default:
		t, ok := catalog.Lookup(cfg.MountType)
		if !ok {
			return nil, fmt.Errorf("%w: %w %q", config.ErrInvalidConfig, ErrUnknownType, cfg.MountType)
		}
		reachable = []Type{t}
	}
	for _, t := range reachable {
		if t.Placement() == PlaceAirplane {
			if err := cfg.AirplaneTilt.Validate(); err != nil {
				return nil, fmt.Errorf("mount type %q: %w", t.Name, err)
			}
			break
		}
	}
	return catalog, nil
}

// Catalog returns the catalog the factory selects from.
func (f *Factory) Catalog() *Catalog {
	return f.catalog
}

// Models returns every model the factory may spawn.
func (f *Factory) Models() []string {
	seen := map[string]bool{}
	var out []string
	if f.cfg.MountType == "" && f.cfg.Model != "" {
		seen[f.cfg.Model] = true
		out = append(out, f.cfg.Model)
	}
	if f.catalog != nil && f.cfg.MountType != "" {
		for _, m := range f.catalog.Models() {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// Select resolves the type to spawn for the next attach.
func (f *Factory) Select() (Type, error) {
	var (
		t   Type
		err error
	)
	switch f.cfg.MountType {
	case "":
		t = f.configuredType()
	case RandomType:
		if f.catalog == nil {
			return Type{}, fmt.Errorf("%w: no catalog loaded", ErrUnknownType)
		}
		t, err = f.catalog.Pick(f.rng)
		if err != nil {
			return Type{}, err
		}
	default:
		var ok bool
		if f.catalog != nil {
			t, ok = f.catalog.Lookup(f.cfg.MountType)
		}
		if !ok {
			return Type{}, fmt.Errorf("%w: %q", ErrUnknownType, f.cfg.MountType)
		}
	}

	if f.cfg.TeamColors {
		t.Flags |= FlagTeamColors
	}
	if t.Sound == "" {
		t.Sound = f.cfg.Sound
	}
	return t, nil
}

func (f *Factory) configuredType() Type {
	var flags Flags
	if f.cfg.Backpack {
		flags |= FlagBackpack
	}
	if f.cfg.Carpet {
		flags |= FlagCarpet
	}
	if f.cfg.Airplane {
		flags |= FlagAirplane
	}
	if f.cfg.Vehicle {
		flags |= FlagVehicle
	}
	scale := f.cfg.ModelSize
	if scale == 0 {
		scale = 1
	}
	return Type{Name: "default", Model: f.cfg.Model, Scale: scale, Flags: flags}
}

// Attach spawns a mount for p. Every failure wraps ErrSpawnFailed; an
// unresolvable type additionally wraps ErrUnknownType.
func (f *Factory) Attach(p host.Player) (Attachment, error) {
	t, err := f.Select()
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	h, err := f.entities.Spawn(t.Model, t.Scale)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %s: %w", ErrSpawnFailed, t.Model, err)
	}
	if h == host.InvalidHandle {
		return Attachment{}, fmt.Errorf("%w: %s: host returned no handle", ErrSpawnFailed, t.Model)
	}

	if t.Flags.Has(FlagTeamColors) {
		f.entities.SetTint(h, f.TeamTint(p.Team()))
	}
	return Attachment{Handle: h, Type: t}, nil
}

// Detach destroys the mount entity. Destroying an already removed handle is a
// no-op.
func (f *Factory) Detach(h host.Handle) {
	if h == host.InvalidHandle || !f.entities.Valid(h) {
		return
	}
	f.entities.Destroy(h)
}

// Valid reports whether the mount entity still exists.
func (f *Factory) Valid(h host.Handle) bool {
	return h != host.InvalidHandle && f.entities.Valid(h)
}

// Place moves the mount to follow pose. Airplane mounts advance bank by one
// tick first.
func (f *Factory) Place(a Attachment, pose core.Pose, vel core.Vector, bank *Bank) {
	var roll float64
	if a.Type.Placement() == PlaceAirplane && bank != nil {
		roll = bank.Step(pose.Rotation.Yaw, f.cfg.AirplaneTilt)
	}
	target := ComputeOffset(a.Type, pose, roll)
	f.entities.Teleport(a.Handle, &target.Origin, &target.Rotation, &vel)
}

// Emit plays sound on the mount.
func (f *Factory) Emit(h host.Handle, sound string) {
	if sound == "" {
		return
	}
	f.entities.EmitSound(h, sound)
}

// TeamTint returns a random shade in the team's color band: red for
// attackers, blue for defenders and white for everyone else.
func (f *Factory) TeamTint(team core.Team) color.RGBA {
	shade := func() uint8 { return uint8(100 + f.rng.IntN(156)) }
	switch team {
	case core.TeamAttackers:
		return color.RGBA{R: shade(), A: 255}
	case core.TeamDefenders:
		return color.RGBA{B: shade(), A: 255}
	default:
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}
	}
}
