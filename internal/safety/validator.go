// Package safety implements the safe-zone constraint validator for RAN
// parameter adjustments (spec §4.3): hardcoded, build-time embedded
// constraints plus runtime-registered custom constraints, ordered
// validation (absolute bounds, change limit, cooldown, safe-bounds
// warning), and a SIMD-lane batch path for validating many parameters
// at once via vectorops.
package safety

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/octoreflex/ranswarm/internal/vectorops"
)

// ViolationType classifies why a parameter value or change was rejected.
type ViolationType uint8

const (
	ViolationExceedsAbsoluteMax ViolationType = iota
	ViolationBelowAbsoluteMin
	ViolationExceedsChangeLimit
	ViolationInCooldown
	ViolationOutsideSafeBounds
)

func (v ViolationType) String() string {
	switch v {
	case ViolationExceedsAbsoluteMax:
		return "ExceedsAbsoluteMax"
	case ViolationBelowAbsoluteMin:
		return "BelowAbsoluteMin"
	case ViolationExceedsChangeLimit:
		return "ExceedsChangeLimit"
	case ViolationInCooldown:
		return "InCooldown"
	case ViolationOutsideSafeBounds:
		return "OutsideSafeBounds"
	default:
		return "Unknown"
	}
}

// Severity is the seriousness of a violation.
type Severity uint8

const (
	SeverityCritical Severity = iota
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityWarning:
		return "Warning"
	case SeverityInfo:
		return "Info"
	default:
		return "Unknown"
	}
}

// Violation describes one constraint failure for one parameter.
type Violation struct {
	Parameter     string
	OldValue      float32
	NewValue      float32
	ViolationType ViolationType
	Severity      Severity
	Message       string
}

// Sentinel errors returned by single-value validation. Each wraps the
// offending parameter/value pair via fmt.Errorf so callers can still
// match with errors.Is against the base sentinel.
var (
	ErrUnknownParameter    = errors.New("safety: no constraint registered for parameter")
	ErrExceedsAbsoluteMax  = errors.New("safety: value exceeds absolute maximum")
	ErrBelowAbsoluteMin    = errors.New("safety: value below absolute minimum")
	ErrExceedsChangeLimit  = errors.New("safety: change exceeds percentage limit")
	ErrParameterInCooldown = errors.New("safety: parameter is in cooldown")
)

// Validator enforces safe-zone constraints for RAN parameter values and
// changes. It holds runtime-registered custom constraints and per-parameter
// cooldown timestamps; hardcoded constraints are consulted first and never
// shadowed by a custom registration of the same name.
type Validator struct {
	mu         sync.RWMutex
	custom     map[string]SafeZone
	lastChange map[string]time.Time
	ops        *vectorops.Ops
}

// NewValidator creates a Validator bound to the detected vectorops
// implementation.
func NewValidator() *Validator {
	return &Validator{
		custom:     make(map[string]SafeZone),
		lastChange: make(map[string]time.Time),
		ops:        vectorops.New(),
	}
}

// AddConstraint registers a runtime constraint for a parameter not covered
// by the embedded catalog. It has no effect on parameters already present
// in the embedded catalog, which always takes precedence.
func (v *Validator) AddConstraint(paramName string, zone SafeZone) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.custom[paramName] = zone
}

// RemoveConstraint removes a runtime constraint, reporting whether one was
// present.
func (v *Validator) RemoveConstraint(paramName string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.custom[paramName]
	delete(v.custom, paramName)
	return ok
}

// GetConstraint returns the effective constraint for a parameter, checking
// the embedded catalog first and falling back to runtime registrations.
func (v *Validator) GetConstraint(paramName string) (SafeZone, bool) {
	if z, ok := getHardcodedConstraint(paramName); ok {
		return z, true
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	z, ok := v.custom[paramName]
	return z, ok
}

// ValidateValue checks a single proposed value against absolute bounds.
func (v *Validator) ValidateValue(paramName string, value float32) error {
	zone, ok := v.GetConstraint(paramName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, paramName)
	}
	if !zone.WithinAbsoluteBounds(value) {
		if value > zone.AbsoluteMax {
			return fmt.Errorf("%w: %s=%g > %g", ErrExceedsAbsoluteMax, paramName, value, zone.AbsoluteMax)
		}
		return fmt.Errorf("%w: %s=%g < %g", ErrBelowAbsoluteMin, paramName, value, zone.AbsoluteMin)
	}
	return nil
}

// ValidateChange runs the ordered validation rules for a proposed
// parameter change: absolute bounds, then change-limit percentage, then
// cooldown. The first failing rule is returned.
func (v *Validator) ValidateChange(paramName string, oldValue, newValue float32) error {
	zone, ok := v.GetConstraint(paramName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParameter, paramName)
	}

	if !zone.WithinAbsoluteBounds(newValue) {
		if newValue > zone.AbsoluteMax {
			return fmt.Errorf("%w: %s=%g > %g", ErrExceedsAbsoluteMax, paramName, newValue, zone.AbsoluteMax)
		}
		return fmt.Errorf("%w: %s=%g < %g", ErrBelowAbsoluteMin, paramName, newValue, zone.AbsoluteMin)
	}

	if !zone.ChangeWithinLimit(oldValue, newValue) {
		changePct := abs32(newValue-oldValue) / abs32(oldValue) * 100.0
		return fmt.Errorf("%w: %s change %.1f%% > limit %.1f%%", ErrExceedsChangeLimit, paramName, changePct, zone.ChangeLimitPercent)
	}

	v.mu.RLock()
	lastTS, inCooldown := v.lastChange[paramName]
	v.mu.RUnlock()
	if inCooldown {
		elapsed := time.Since(lastTS)
		cooldown := time.Duration(zone.CooldownSeconds) * time.Second
		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return fmt.Errorf("%w: %s has %s remaining", ErrParameterInCooldown, paramName, remaining)
		}
	}

	return nil
}

// RecordChange stamps the current time as the last-change timestamp for a
// parameter, starting its cooldown window.
func (v *Validator) RecordChange(paramName string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastChange[paramName] = time.Now()
}

// RecordChanges stamps the current time for multiple parameters at once.
func (v *Validator) RecordChanges(paramNames []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := time.Now()
	for _, name := range paramNames {
		v.lastChange[name] = now
	}
}

// ClearCooldown removes the cooldown timer for a parameter.
func (v *Validator) ClearCooldown(paramName string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.lastChange, paramName)
}

// ClearAllCooldowns removes every cooldown timer.
func (v *Validator) ClearAllCooldowns() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastChange = make(map[string]time.Time)
}

// CooldownStatus is a snapshot of one parameter's remaining cooldown.
type CooldownStatus struct {
	Parameter string
	Remaining time.Duration
}

// ListCooldowns returns every parameter currently within its cooldown
// window, with the time remaining before another change is permitted.
// Parameters whose cooldown has already elapsed are omitted.
func (v *Validator) ListCooldowns() []CooldownStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]CooldownStatus, 0, len(v.lastChange))
	now := time.Now()
	for name, lastTS := range v.lastChange {
		zone, ok := getHardcodedConstraint(name)
		if !ok {
			zone, ok = v.custom[name]
			if !ok {
				continue
			}
		}
		cooldown := time.Duration(zone.CooldownSeconds) * time.Second
		elapsed := now.Sub(lastTS)
		if elapsed >= cooldown {
			continue
		}
		out = append(out, CooldownStatus{Parameter: name, Remaining: cooldown - elapsed})
	}
	return out
}

// ValidateBatch validates many parameter changes at once. Absolute-bounds
// checking for the whole batch is dispatched through vectorops.ValidateRange
// (the SIMD-lane batch path); change-limit, cooldown, and safe-bounds
// checks run per-parameter afterward since they depend on per-parameter
// state not expressible as a single masked range check. Returns every
// violation found; an empty slice means the whole batch is valid.
func (v *Validator) ValidateBatch(paramNames []string, oldValues, newValues []float32) []Violation {
	if len(paramNames) != len(oldValues) || len(oldValues) != len(newValues) {
		panic("safety: ValidateBatch slice length mismatch")
	}

	n := len(paramNames)
	mins := make([]float32, n)
	maxs := make([]float32, n)
	for i, name := range paramNames {
		zone, ok := v.GetConstraint(name)
		if !ok {
			mins[i] = float32(math.Inf(-1))
			maxs[i] = float32(math.Inf(1))
			continue
		}
		mins[i] = zone.AbsoluteMin
		maxs[i] = zone.AbsoluteMax
	}

	mask := make([]uint8, n)
	v.ops.ValidateRange(newValues, mins, maxs, mask)

	var violations []Violation
	for i, name := range paramNames {
		oldVal, newVal := oldValues[i], newValues[i]
		zone, ok := v.GetConstraint(name)

		if mask[i] == 0 {
			if ok {
				if newVal > zone.AbsoluteMax {
					violations = append(violations, Violation{
						Parameter: name, OldValue: oldVal, NewValue: newVal,
						ViolationType: ViolationExceedsAbsoluteMax, Severity: SeverityCritical,
						Message: fmt.Sprintf("value %g exceeds absolute maximum %g", newVal, zone.AbsoluteMax),
					})
				} else if newVal < zone.AbsoluteMin {
					violations = append(violations, Violation{
						Parameter: name, OldValue: oldVal, NewValue: newVal,
						ViolationType: ViolationBelowAbsoluteMin, Severity: SeverityCritical,
						Message: fmt.Sprintf("value %g below absolute minimum %g", newVal, zone.AbsoluteMin),
					})
				}
			}
			continue
		}
		if !ok {
			continue
		}

		if !zone.ChangeWithinLimit(oldVal, newVal) {
			changePct := abs32(newVal-oldVal) / abs32(oldVal) * 100.0
			violations = append(violations, Violation{
				Parameter: name, OldValue: oldVal, NewValue: newVal,
				ViolationType: ViolationExceedsChangeLimit, Severity: SeverityCritical,
				Message: fmt.Sprintf("change of %.1f%% exceeds limit of %.1f%%", changePct, zone.ChangeLimitPercent),
			})
		}

		v.mu.RLock()
		lastTS, inCooldown := v.lastChange[name]
		v.mu.RUnlock()
		if inCooldown {
			elapsed := time.Since(lastTS)
			cooldown := time.Duration(zone.CooldownSeconds) * time.Second
			if elapsed < cooldown {
				violations = append(violations, Violation{
					Parameter: name, OldValue: oldVal, NewValue: newVal,
					ViolationType: ViolationInCooldown, Severity: SeverityCritical,
					Message: fmt.Sprintf("parameter in cooldown (%s remaining)", cooldown-elapsed),
				})
			}
		}

		if !zone.WithinSafeBounds(newVal) {
			violations = append(violations, Violation{
				Parameter: name, OldValue: oldVal, NewValue: newVal,
				ViolationType: ViolationOutsideSafeBounds, Severity: SeverityWarning,
				Message: fmt.Sprintf("value %g outside safe range [%g, %g]", newVal, zone.SafeMin, zone.SafeMax),
			})
		}
	}

	return violations
}

