package admission

import (
	"fmt"
	"strings"
)

// =============================================================================
// PERMISSION EVALUATOR
// =============================================================================

// Mode decides how a set of required permissions is matched.
type Mode string

const (
	ModeAll Mode = "ALL"
	ModeAny Mode = "ANY"
)

// ParseMode accepts "all"/"any" in any case; empty means ModeAll.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeAny:
		return ModeAny, nil
	}
	return "", fmt.Errorf("unknown permission mode %q", s)
}

// Policy is the static permission requirement of an action.
type Policy struct {
	Required []string
	Mode     Mode
}

// RequireAll and RequireAny build policies.
func RequireAll(perms ...string) Policy { return Policy{Required: perms, Mode: ModeAll} }
func RequireAny(perms ...string) Policy { return Policy{Required: perms, Mode: ModeAny} }

// Open reports whether the policy lets anyone through.
func (p Policy) Open() bool { return len(p.Required) == 0 }

// Authenticate checks that a usable identity is present.
func Authenticate(caller *Caller) error {
	if caller == nil {
		return fmt.Errorf("%w: no caller", ErrUnauthenticated)
	}
	if caller.Role == nil {
		return fmt.Errorf("%w: caller %s has no role", ErrUnauthenticated, caller.ID)
	}
	if !caller.IsActive {
		return fmt.Errorf("%w: caller %s is inactive", ErrUnauthenticated, caller.ID)
	}
	return nil
}

// Authorize evaluates caller against policy. It performs no I/O.
func Authorize(caller *Caller, policy Policy) error {
	if policy.Open() {
		return nil
	}
	if err := Authenticate(caller); err != nil {
		return err
	}

	var missing []string
	for _, p := range policy.Required {
		if !caller.Role.Has(p) {
			missing = append(missing, p)
		}
	}

	mode := policy.Mode
	if mode == "" {
		mode = ModeAll
	}

	switch mode {
	case ModeAny:
		if len(missing) < len(policy.Required) {
			return nil
		}
	default:
		if len(missing) == 0 {
			return nil
		}
	}
	return &ForbiddenError{CallerID: caller.ID, Mode: mode, Missing: missing}
}
