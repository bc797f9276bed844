// Package capability maps an acting user's role to the lifecycle transitions
// they may invoke. It is enforced by the caller before a lifecycle operation
// runs; the state machine itself never sees roles, keeping its guards purely
// data-driven and this mapping independently testable.
package capability

import (
	id "limscore/pkg/domain"
)

// Transition names an invocable lifecycle operation.
type Transition string

const (
	TransitionEnter   Transition = "enter"
	TransitionVerify  Transition = "verify"
	TransitionRelease Transition = "release"
	TransitionAmend   Transition = "amend"
)

// Gate answers authorization questions for lifecycle transitions.
type Gate struct{}

// NewGate constructs the capability gate.
func NewGate() *Gate {
	return &Gate{}
}

// Authorize reports whether the principal may invoke the transition.
//
// The mapping follows laboratory practice: scientists and technologists
// enter results, lab managers verify them, scientists carry the final legal
// release, and post-release amendment is restricted to vendor admins.
// Vendor admins hold every capability.
func (g *Gate) Authorize(p id.Principal, transition Transition) bool {
	if p.VendorAdmin {
		return true
	}
	switch transition {
	case TransitionEnter:
		return p.Role == id.RoleScientist || p.Role == id.RoleTechnologist
	case TransitionVerify:
		return p.Role == id.RoleLabManager
	case TransitionRelease:
		return p.Role == id.RoleScientist
	case TransitionAmend:
		return false
	default:
		return false
	}
}
