package model

import (
	"fmt"
	"strings"
	"time"
)

// MaxExtrapolatedMinutes caps how far local progress extrapolation may run
// ahead of the last authoritative report before a channel switch is forced.
const MaxExtrapolatedMinutes = 15

// Drop represents a single time-based drop within a campaign. Cross-references
// are identifiers: CampaignID names the owning campaign and Preconditions name
// sibling drops that must be claimed first.
type Drop struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	Name       string `json:"name"`

	Benefits        []Benefit `json:"benefits,omitempty"`
	RequiredMinutes int       `json:"required_minutes"`
	Preconditions   []string  `json:"preconditions,omitempty"`

	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`

	ClaimID   string `json:"claim_id,omitempty"`
	IsClaimed bool   `json:"is_claimed"`

	// realMinutes is the last server-confirmed progress; extraMinutes is
	// locally extrapolated on top of it between authoritative reports.
	realMinutes  int
	extraMinutes int
	lastReportAt time.Time

	// chainBroken marks drops whose precondition chain has a cycle or
	// exceeds the depth cap; such drops are never eligible.
	chainBroken bool
}

// NewDrop creates a Drop from reconciled API data.
func NewDrop(id, campaignID, name string, required int, startAt, endAt time.Time) *Drop {
	return &Drop{
		ID:              id,
		CampaignID:      campaignID,
		Name:            name,
		RequiredMinutes: required,
		StartAt:         startAt,
		EndAt:           endAt,
	}
}

// CurrentMinutes returns confirmed plus extrapolated progress, clamped to the
// required total.
func (d *Drop) CurrentMinutes() int {
	total := d.realMinutes + d.extraMinutes
	if total > d.RequiredMinutes {
		return d.RequiredMinutes
	}
	if total < 0 {
		return 0
	}
	return total
}

// RemainingMinutes returns the minutes left until the drop completes.
func (d *Drop) RemainingMinutes() int {
	return d.RequiredMinutes - d.CurrentMinutes()
}

// ExtrapolatedMinutes returns how many locally bumped minutes are pending
// confirmation.
func (d *Drop) ExtrapolatedMinutes() int {
	return d.extraMinutes
}

// LastReportAt returns the timestamp of the last authoritative report.
func (d *Drop) LastReportAt() time.Time {
	return d.lastReportAt
}

// ReportMinutes applies an authoritative server report. The report wins only
// when its timestamp is newer than the last one seen; it then replaces local
// progress entirely, which is the only legal way for progress to regress.
// Returns true if the report was applied.
func (d *Drop) ReportMinutes(minutes int, at time.Time) bool {
	if !at.After(d.lastReportAt) {
		return false
	}
	if minutes < 0 {
		minutes = 0
	}
	if minutes > d.RequiredMinutes {
		minutes = d.RequiredMinutes
	}
	d.realMinutes = minutes
	d.extraMinutes = 0
	d.lastReportAt = at
	return true
}

// SeedMinutes sets confirmed progress from an inventory fetch without a report
// timestamp. It never regresses an already reported value.
func (d *Drop) SeedMinutes(minutes int) {
	if minutes > d.RequiredMinutes {
		minutes = d.RequiredMinutes
	}
	if minutes > d.realMinutes {
		d.realMinutes = minutes
		d.extraMinutes = 0
	}
}

// BumpMinute extrapolates one minute of progress locally. Returns true when
// the extrapolation cap is reached and the caller should force a re-selection.
func (d *Drop) BumpMinute() bool {
	if d.IsClaimed || d.Complete() || d.chainBroken {
		return false
	}
	d.extraMinutes++
	return d.extraMinutes >= MaxExtrapolatedMinutes
}

// Complete reports whether the full required watch time has been accumulated.
func (d *Drop) Complete() bool {
	return d.RequiredMinutes > 0 && d.CurrentMinutes() >= d.RequiredMinutes
}

// Active reports whether the drop's own time window is currently open.
func (d *Drop) Active(now time.Time) bool {
	return !d.StartAt.After(now) && now.Before(d.EndAt)
}

// MarkClaimed transitions the drop to claimed. The transition is monotonic;
// claimed drops also have their progress pinned at the required total.
func (d *Drop) MarkClaimed() {
	if d.IsClaimed {
		return
	}
	d.IsClaimed = true
	d.realMinutes = d.RequiredMinutes
	d.extraMinutes = 0
}

// MarkChainBroken flags the drop as part of an invalid precondition chain.
func (d *Drop) MarkChainBroken() {
	d.chainBroken = true
}

// ChainBroken reports whether the precondition chain validation failed.
func (d *Drop) ChainBroken() bool {
	return d.chainBroken
}

// Progress returns completion in [0, 1].
func (d *Drop) Progress() float64 {
	if d.RequiredMinutes <= 0 {
		return 0
	}
	p := float64(d.CurrentMinutes()) / float64(d.RequiredMinutes)
	if p > 1 {
		return 1
	}
	return p
}

// BenefitNames returns a comma-joined list of the drop's reward names.
func (d *Drop) BenefitNames() string {
	names := make([]string, 0, len(d.Benefits))
	for _, b := range d.Benefits {
		names = append(names, b.Name)
	}
	return strings.Join(names, ", ")
}

// HasWantedBenefit reports whether any benefit passes the given benefit-type
// gates. A drop without benefits passes only if it participates in a
// precondition chain, which the campaign checks separately.
func (d *Drop) HasWantedBenefit(gates map[BenefitType]bool) bool {
	for _, b := range d.Benefits {
		if allowed, ok := gates[b.Type]; !ok || allowed {
			return true
		}
	}
	return false
}

// String returns a human-readable representation of the drop.
func (d *Drop) String() string {
	return fmt.Sprintf("Drop(id=%s, name=%s, progress=%d/%d, claimed=%t)",
		d.ID, d.Name, d.CurrentMinutes(), d.RequiredMinutes, d.IsClaimed)
}
