// Package compliance implements the deterministic policy engine that
// gates every send: seven checks run unconditionally, and the aggregate
// decision is ALLOW, BLOCK(reasons), or DEFER(until).
package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/leafline/messaging-core/internal/model"
	"github.com/leafline/messaging-core/internal/quiethours"
)

// Decision is the Compliance Gate's aggregate outcome.
type Decision string

const (
	Allow Decision = "ALLOW"
	Block Decision = "BLOCK"
	Defer Decision = "DEFER"
)

// CheckName identifies one of the seven fixed-order checks.
type CheckName string

const (
	CheckConsent      CheckName = "consent"
	CheckOptOut       CheckName = "opt_out"
	CheckAge          CheckName = "age_verification"
	CheckGlobalOptOut CheckName = "global_opt_out"
	CheckQuietHours   CheckName = "quiet_hours"
	CheckRateLimit    CheckName = "rate_limit"
	CheckStateRules   CheckName = "state_rules"
)

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Passed bool
	Reason string
}

// Result is everything a caller needs to react to an evaluation: the
// decision, every failing reason (all checks run, not short-circuit), the
// per-check detail, and — for DEFER — the instant a retry would pass.
type Result struct {
	Decision        Decision
	Reasons         []string
	Checks          map[CheckName]CheckResult
	RetryAfter      *time.Time
	ContactSnapshot *model.Contact
}

// Store is the subset of tenant-scoped storage the gate needs. It is
// satisfied by *store.Store in production and by a hand-rolled fake in
// tests, mirroring the teacher repo's own interface-plus-mock pattern.
type Store interface {
	GetContact(ctx context.Context, tenantID, contactID string) (*model.Contact, error)
	GetLocation(ctx context.Context, tenantID, locationID string) (*model.Location, error)
	GlobalOptOutExists(ctx context.Context, phone string) (bool, error)
	CountOutboundLast24h(ctx context.Context, tenantID, contactID string, kind model.MessageKind) (int, error)
}

// StateRuleHook lets per-state policy be added without changing callers.
// The default implementation is a no-op, per spec.
type StateRuleHook func(ctx context.Context, contact *model.Contact, kind model.MessageKind) (passed bool, reason string)

// NoopStateRule always passes.
func NoopStateRule(ctx context.Context, contact *model.Contact, kind model.MessageKind) (bool, string) {
	return true, ""
}

// Config holds the gate's tunable policy knobs (spec.md §6's
// compliance.* options).
type Config struct {
	QuietHours        quiethours.Window
	MaxMessagesPerDay int
	DefaultTimezone   string
}

// DefaultConfig matches spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		QuietHours:        quiethours.Window{Start: "21:00", End: "08:00"},
		MaxMessagesPerDay: 3,
		DefaultTimezone:   "America/Los_Angeles",
	}
}

// Gate evaluates the seven compliance checks for a single send.
type Gate struct {
	Store     Store
	Config    Config
	StateRule StateRuleHook
	Now       func() time.Time // overridable for tests
}

// New constructs a Gate with sane defaults (no-op state rule, time.Now).
func New(store Store, cfg Config) *Gate {
	return &Gate{Store: store, Config: cfg, StateRule: NoopStateRule, Now: time.Now}
}

// Evaluate runs all seven checks for a send of kind to contactID and
// aggregates them into a single decision. Every check runs regardless of
// earlier failures, so the caller sees every failing reason at once.
func (g *Gate) Evaluate(ctx context.Context, tenantID, contactID string, kind model.MessageKind) (*Result, error) {
	contact, err := g.Store.GetContact(ctx, tenantID, contactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, fmt.Errorf("compliance: contact %s not found", contactID)
	}

	now := g.Now()
	checks := make(map[CheckName]CheckResult, 7)
	var reasons []string
	var retryAfter *time.Time

	record := func(name CheckName, passed bool, reason string) {
		checks[name] = CheckResult{Passed: passed, Reason: reason}
		if !passed {
			reasons = append(reasons, reason)
		}
	}

	// 1. Consent
	g.checkConsent(contact, kind, record)

	// 2. Opt-out flag
	g.checkOptOut(contact, kind, record)

	// 3. Age verification
	g.checkAge(contact, now, record)

	// 4. Global opt-out (SMS only)
	if kind == model.MessageKindSMS {
		blocked, err := g.Store.GlobalOptOutExists(ctx, contact.Phone)
		if err != nil {
			return nil, err
		}
		record(CheckGlobalOptOut, !blocked, "phone is in the global opt-out list")
	} else {
		record(CheckGlobalOptOut, true, "")
	}

	// 5. Quiet hours (SMS only)
	if kind == model.MessageKindSMS {
		inWindow, until, err := g.checkQuietHours(ctx, tenantID, contact, now)
		if err != nil {
			return nil, err
		}
		record(CheckQuietHours, !inWindow, "recipient is inside their quiet hours window")
		if inWindow {
			retryAfter = until
		}
	} else {
		record(CheckQuietHours, true, "")
	}

	// 6. Rate limit
	count, err := g.Store.CountOutboundLast24h(ctx, tenantID, contactID, kind)
	if err != nil {
		return nil, err
	}
	record(CheckRateLimit, count < g.Config.MaxMessagesPerDay,
		fmt.Sprintf("rate limit exceeded: %d/%d messages in the last 24h", count, g.Config.MaxMessagesPerDay))

	// 7. State rules (no-op hook)
	passed, reason := g.StateRule(ctx, contact, kind)
	record(CheckStateRules, passed, reason)

	decision := aggregate(checks, retryAfter)

	return &Result{
		Decision:        decision,
		Reasons:         reasons,
		Checks:          checks,
		RetryAfter:      retryAfter,
		ContactSnapshot: contact,
	}, nil
}

// aggregate implements the decision rule: DEFER only when quiet_hours is
// the single failing check and a retry instant was computed; BLOCK on any
// other failure; ALLOW otherwise.
func aggregate(checks map[CheckName]CheckResult, retryAfter *time.Time) Decision {
	failing := make([]CheckName, 0, 1)
	for name, result := range checks {
		if !result.Passed {
			failing = append(failing, name)
		}
	}

	if len(failing) == 0 {
		return Allow
	}
	if len(failing) == 1 && failing[0] == CheckQuietHours && retryAfter != nil {
		return Defer
	}
	return Block
}

func (g *Gate) checkConsent(contact *model.Contact, kind model.MessageKind, record func(CheckName, bool, string)) {
	switch kind {
	case model.MessageKindSMS:
		if !contact.SMSConsent {
			record(CheckConsent, false, "No SMS consent on file")
			return
		}
		if contact.SMSConsentAt == nil {
			record(CheckConsent, false, "SMS consent missing a consent timestamp")
			return
		}
		record(CheckConsent, true, "")
	case model.MessageKindEmail:
		if !contact.EmailConsent {
			record(CheckConsent, false, "No email consent on file")
			return
		}
		record(CheckConsent, true, "")
	default:
		record(CheckConsent, false, "unknown message kind")
	}
}

func (g *Gate) checkOptOut(contact *model.Contact, kind model.MessageKind, record func(CheckName, bool, string)) {
	if kind == model.MessageKindSMS && contact.SMSOptedOut {
		record(CheckOptOut, false, "contact has opted out of SMS")
		return
	}
	record(CheckOptOut, true, "")
}

func (g *Gate) checkAge(contact *model.Contact, now time.Time, record func(CheckName, bool, string)) {
	if !contact.AgeVerified {
		record(CheckAge, false, "age not verified")
		return
	}
	if contact.DOB == nil {
		record(CheckAge, false, "under 21: no date of birth on file")
		return
	}
	cutoff := now.AddDate(-21, 0, 0)
	if contact.DOB.After(cutoff) {
		record(CheckAge, false, "under 21")
		return
	}
	record(CheckAge, true, "")
}

func (g *Gate) checkQuietHours(ctx context.Context, tenantID string, contact *model.Contact, now time.Time) (inWindow bool, until *time.Time, err error) {
	tzName := g.Config.DefaultTimezone
	if contact.Timezone != nil && *contact.Timezone != "" {
		tzName = *contact.Timezone
	} else if contact.PrimaryLocationID != nil {
		loc, err := g.Store.GetLocation(ctx, tenantID, *contact.PrimaryLocationID)
		if err != nil {
			return false, nil, err
		}
		if loc != nil && loc.Timezone != "" {
			tzName = loc.Timezone
		}
	}

	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return false, nil, fmt.Errorf("compliance: invalid timezone %q: %w", tzName, err)
	}

	in, err := g.Config.QuietHours.IsInWindow(tz, now)
	if err != nil {
		return false, nil, err
	}
	if !in {
		return false, nil, nil
	}

	end, err := g.Config.QuietHours.WindowEndAfter(tz, now)
	if err != nil {
		return false, nil, err
	}
	return true, &end, nil
}
