package config

import (
	"errors"
	"fmt"
)

// Validate reports every inconsistency in the mount configuration. The
// returned error wraps ErrInvalidConfig.
func (c MountConfig) Validate() error {
	var errs []error

	switch c.VelocityMode {
	case VelocityDescent, VelocityThrust:
	default:
		errs = append(errs, fmt.Errorf("unknown velocity mode %q", c.VelocityMode))
	}
	if c.FallSpeed < 0 {
		errs = append(errs, fmt.Errorf("fall speed must not be negative, got %v", c.FallSpeed))
	}
	if c.MaxVelocity < 0 {
		errs = append(errs, fmt.Errorf("max velocity must not be negative, got %v", c.MaxVelocity))
	}
	if c.SideMovementModifier <= 0 {
		errs = append(errs, fmt.Errorf("side movement modifier must be positive, got %v", c.SideMovementModifier))
	}
	if c.ModelSize <= 0 {
		errs = append(errs, fmt.Errorf("model size must be positive, got %v", c.ModelSize))
	}
	if c.MountType == "" && c.Model == "" {
		errs = append(errs, errors.New("no mount model configured"))
	}
	if c.CacheRefreshTicks < 1 {
		errs = append(errs, fmt.Errorf("cache refresh interval must be at least 1 tick, got %d", c.CacheRefreshTicks))
	}
	if c.SoundInterval < 0 || c.EffectInterval < 0 {
		errs = append(errs, errors.New("cue intervals must not be negative"))
	}

	if c.VelocityMode == VelocityThrust {
		t := c.Thrust
		if t.LerpFactor <= 0 || t.LerpFactor > 1 {
			errs = append(errs, fmt.Errorf("thrust lerp factor must be in (0, 1], got %v", t.LerpFactor))
		}
		if t.MinLerpFactor <= 0 || t.MinLerpFactor > t.LerpFactor {
			errs = append(errs, fmt.Errorf("thrust min lerp factor must be in (0, lerpFactor], got %v", t.MinLerpFactor))
		}
		if t.MinSpeed < 0 || t.ClimbSpeed < 0 || t.DescentMultiplier < 0 {
			errs = append(errs, errors.New("thrust speeds must not be negative"))
		}
		if t.LevelDeadzone < 0 || t.LevelDeadzone >= 90 {
			errs = append(errs, fmt.Errorf("thrust level deadzone must be in [0, 90), got %v", t.LevelDeadzone))
		}
	}

	if c.Airplane {
		errs = append(errs, c.AirplaneTilt.problems()...)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Validate checks the bank limits used by airplane mounts. Callers that spawn
// airplane types from a catalog check it even when the airplane flag is off.
func (a AirplaneConfig) Validate() error {
	if errs := a.problems(); len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (a AirplaneConfig) problems() []error {
	var errs []error
	if a.MaxBank <= 0 {
		errs = append(errs, fmt.Errorf("airplane max bank must be positive, got %v", a.MaxBank))
	}
	if a.BankRate <= 0 {
		errs = append(errs, fmt.Errorf("airplane bank rate must be positive, got %v", a.BankRate))
	}
	if a.BankPerDegree < 0 {
		errs = append(errs, fmt.Errorf("airplane bank per degree must not be negative, got %v", a.BankPerDegree))
	}
	return errs
}
