// Package status is the single source of truth for the purchase lifecycle:
// which status values exist, how legacy raw values map into the canonical
// flow, which transitions are legal, and which role may perform them.
package status

import (
	"errors"
	"fmt"
	"strings"
)

// Status is a canonical purchase lifecycle value.
type Status string

const (
	Draft               Status = "draft"
	Submitted           Status = "submitted"
	Receiving           Status = "receiving"
	Received            Status = "received"
	DiscrepancyReported Status = "discrepancy_reported"
	Paid                Status = "paid"
	Completed           Status = "completed"
	Closed              Status = "closed"
	Rejected            Status = "rejected"
)

// Legacy raw values still present in storage. Kept valid so historical rows
// never become unreadable; Normalize maps them into the canonical flow.
const (
	LegacyPending              Status = "pending"
	LegacyAwaitingConfirmation Status = "awaiting_confirmation"
	LegacyApproved             Status = "approved"
	LegacyPayableOpen          Status = "payable_open"
	LegacyDelivered            Status = "delivered"
)

// Role keys used in the transition ownership rules.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInventory  Role = "inventory_manager"
	RoleAccountant Role = "accountant"
	RoleFinance    Role = "finance"
)

var (
	// ErrInvalidStatus indicates the target status does not normalize to a known value.
	ErrInvalidStatus = errors.New("status: invalid purchase status")
	// ErrIllegalTransition indicates the edge is absent from the lifecycle table.
	ErrIllegalTransition = errors.New("status: illegal status transition")
	// ErrUnauthorizedTransition indicates the actor role does not own the edge.
	ErrUnauthorizedTransition = errors.New("status: role not allowed for transition")
)

// values lists every raw value accepted in storage, legacy ones included.
var values = map[Status]struct{}{
	Draft:                      {},
	Submitted:                  {},
	LegacyPending:              {},
	LegacyAwaitingConfirmation: {},
	LegacyApproved:             {},
	Rejected:                   {},
	Receiving:                  {},
	LegacyDelivered:            {},
	Received:                   {},
	DiscrepancyReported:        {},
	Completed:                  {},
	LegacyPayableOpen:          {},
	Paid:                       {},
	Closed:                     {},
}

// legacyMap folds historical values into the canonical flow.
//
// pending and awaiting_confirmation were both used for freshly submitted
// restocks; approved and payable_open meant the order was forwarded to the
// supplier, so inventory can proceed right away; delivered meant arrived.
var legacyMap = map[Status]Status{
	LegacyPending:              Submitted,
	LegacyAwaitingConfirmation: Submitted,
	LegacyApproved:             Receiving,
	LegacyPayableOpen:          Receiving,
	LegacyDelivered:            Received,
}

// transitions is the canonical lifecycle adjacency table (normalized values only).
var transitions = map[Status][]Status{
	Draft:               {Submitted},
	Submitted:           {Receiving, Rejected},
	Receiving:           {Received, DiscrepancyReported},
	Received:            {Paid, DiscrepancyReported},
	DiscrepancyReported: {Paid},
	Paid:                {Completed},
	Completed:           {Closed},
	Rejected:            {},
	Closed:              {},
}

// roleTransitions maps each role to the edges it owns. A role may hold a
// subset of the global table, never a superset; SelfCheck enforces that at
// startup.
var roleTransitions = map[Role]map[Status][]Status{
	RoleInventory: {
		Receiving: {Received, DiscrepancyReported},
		Received:  {DiscrepancyReported},
		Paid:      {Completed},
	},
	RoleAdmin: {
		Submitted: {Receiving, Rejected},
	},
	RoleAccountant: {
		Received:            {Paid},
		DiscrepancyReported: {Paid},
	},
	RoleFinance: {
		Completed: {Closed},
	},
}

// Values returns every raw value accepted in storage.
func Values() []Status {
	out := make([]Status, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	return out
}

// normalizeToken lower-cases, trims, collapses whitespace to underscores and
// converts dashes to underscores.
func normalizeToken(raw string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(raw)))
	return strings.ReplaceAll(strings.Join(fields, "_"), "-", "_")
}

// Normalize maps a raw stored value into the canonical flow. Unknown but
// well-formed values pass through unchanged so old rows are never silently
// dropped; they simply remain invalid downstream. Empty input yields "".
func Normalize(raw string) Status {
	normalized := Status(normalizeToken(raw))
	if canonical, ok := legacyMap[normalized]; ok {
		return canonical
	}
	return normalized
}

// NormalizeRole applies the same string normalization to a role key and maps
// UI labels like "System Admin" into the role key used in the rules. Empty
// input yields "".
func NormalizeRole(raw string) Role {
	normalized := Role(normalizeToken(raw))
	if normalized == "system_admin" || normalized == "super_admin" {
		return RoleAdmin
	}
	return normalized
}

// IsValid reports whether the raw value, or its normalized form, is a known
// status. Legacy values already in storage stay valid so a policy change
// never invalidates historical rows.
func IsValid(raw string) bool {
	token := Status(normalizeToken(raw))
	if _, ok := values[token]; ok {
		return true
	}
	_, ok := values[Normalize(raw)]
	return ok
}

// CanTransition reports whether the edge from->to exists in the lifecycle
// table. Both sides are normalized; an empty from is treated as draft.
// Same-state transitions are always rejected.
func CanTransition(from, to string) bool {
	normalizedFrom := Normalize(from)
	if normalizedFrom == "" {
		normalizedFrom = Draft
	}
	normalizedTo := Normalize(to)
	if normalizedFrom == normalizedTo {
		return false
	}
	return containsStatus(transitions[normalizedFrom], normalizedTo)
}

// ActorCanTransition reports whether the role owns the edge from->to.
// An empty or unknown role owns nothing.
func ActorCanTransition(role, from, to string) bool {
	normalizedRole := NormalizeRole(role)
	if normalizedRole == "" {
		return false
	}
	normalizedFrom := Normalize(from)
	if normalizedFrom == "" {
		normalizedFrom = Draft
	}
	normalizedTo := Normalize(to)
	if normalizedFrom == normalizedTo {
		return false
	}
	return containsStatus(roleTransitions[normalizedRole][normalizedFrom], normalizedTo)
}

// EnsureTransition is the enforcement entry point. It fails with
// ErrInvalidStatus when the target does not normalize to a known value, with
// ErrIllegalTransition when the edge is absent from the lifecycle table, and
// with ErrUnauthorizedTransition when a role was supplied that does not own
// the edge. The lower-level predicates exist for UI affordances only and
// must never replace this function for enforcement.
func EnsureTransition(from, to, actorRole string) error {
	normalizedFrom := Normalize(from)
	if normalizedFrom == "" {
		normalizedFrom = Draft
	}
	normalizedTo := Normalize(to)

	if !IsValid(string(normalizedTo)) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if !CanTransition(string(normalizedFrom), string(normalizedTo)) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, normalizedFrom, normalizedTo)
	}
	if actorRole != "" && !ActorCanTransition(actorRole, string(normalizedFrom), string(normalizedTo)) {
		return fmt.Errorf("%w: role %q for %s -> %s", ErrUnauthorizedTransition, NormalizeRole(actorRole), normalizedFrom, normalizedTo)
	}
	return nil
}

// TerminalStatuses returns the states with no outgoing edges, for gating
// further actions in callers.
func TerminalStatuses() []Status {
	return []Status{Rejected, Closed}
}

// IsTerminal reports whether the value normalizes to a terminal state.
func IsTerminal(raw string) bool {
	normalized := Normalize(raw)
	return normalized == Rejected || normalized == Closed
}

// CODFlowStatuses returns the canonical happy-path order after
// normalization, used for badge ordering and reporting.
func CODFlowStatuses() []Status {
	return []Status{Draft, Submitted, Receiving, Received, Paid, Completed, Closed}
}

// SelfCheck verifies that every role-owned edge also exists in the global
// lifecycle table. The two tables are edited independently; divergence is a
// configuration error and callers should refuse to start.
func SelfCheck() error {
	for role, edges := range roleTransitions {
		for from, targets := range edges {
			for _, to := range targets {
				if !containsStatus(transitions[from], to) {
					return fmt.Errorf("status: role %q grants %s -> %s which is not a lifecycle edge", role, from, to)
				}
			}
		}
	}
	return nil
}

func containsStatus(list []Status, target Status) bool {
	for _, candidate := range list {
		if candidate == target {
			return true
		}
	}
	return false
}
