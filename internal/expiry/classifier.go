// Package expiry maps batch expiry dates to risk tiers.
package expiry

import (
	"math"
	"time"

	"github.com/labtrack/labtrack-client/internal/domain"
)

// DefaultAlertDays is the warning window used when a batch has no
// material-specific expiry_alert_days.
const DefaultAlertDays = 60

// Tier is an expiry risk tier
type Tier string

const (
	TierNormal  Tier = "normal"
	TierWarning Tier = "warning"
	TierExpired Tier = "expired"
)

// Severity is the display severity of a tier
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Status is the classification result
type Status struct {
	Tier          Tier     `json:"status"`
	Label         string   `json:"label"`
	Severity      Severity `json:"type"`
	DaysRemaining int      `json:"days_remaining"`
}

// DaysRemaining returns ceil((expiry - today) / 24h), where today is now
// truncated to its calendar day in the expiry date's location.
func DaysRemaining(expiryDate, now time.Time) int {
	loc := expiryDate.Location()
	n := now.In(loc)
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	diff := expiryDate.Sub(today)
	return int(math.Ceil(diff.Hours() / 24))
}

// Classify maps an expiry date to a tier. The warning window is inclusive
// on both ends.
func Classify(expiryDate time.Time, alertWindowDays int, now time.Time) Status {
	days := DaysRemaining(expiryDate, now)

	switch {
	case days < 0:
		return Status{Tier: TierExpired, Label: "Expired", Severity: SeverityDanger, DaysRemaining: days}
	case days <= alertWindowDays:
		return Status{Tier: TierWarning, Label: "Expiring soon", Severity: SeverityWarning, DaysRemaining: days}
	default:
		return Status{Tier: TierNormal, Label: "Normal", Severity: SeverityInfo, DaysRemaining: days}
	}
}

// Classifier binds a clock and a default window.
type Classifier struct {
	Now              func() time.Time
	DefaultAlertDays int
}

// NewClassifier returns a classifier on the wall clock. A negative
// defaultAlertDays falls back to DefaultAlertDays.
func NewClassifier(defaultAlertDays int) *Classifier {
	if defaultAlertDays < 0 {
		defaultAlertDays = DefaultAlertDays
	}
	return &Classifier{Now: time.Now, DefaultAlertDays: defaultAlertDays}
}

// Fixed returns a classifier pinned to now.
func Fixed(now time.Time, defaultAlertDays int) *Classifier {
	return &Classifier{Now: func() time.Time { return now }, DefaultAlertDays: defaultAlertDays}
}

// Window resolves the alert window for a material, falling back to the
// default when the material is unknown or has no override.
func (c *Classifier) Window(m *domain.Material) int {
	if w, ok := m.AlertWindow(); ok {
		return w
	}
	return c.DefaultAlertDays
}

// Classify classifies a date with an explicit window.
func (c *Classifier) Classify(expiryDate time.Time, alertWindowDays int) Status {
	return Classify(expiryDate, alertWindowDays, c.Now())
}

// ClassifyItem classifies a batch using its material's window. Batches
// without an expiry date are normal.
func (c *Classifier) ClassifyItem(item domain.InventoryItem) Status {
	if item.ExpiryDate.IsZero() {
		return Status{Tier: TierNormal, Label: "Normal", Severity: SeverityInfo}
	}
	return Classify(item.ExpiryDate.Time, c.Window(item.Material), c.Now())
}

// StatusFilter is the numeric status query parameter of the inventory list
// endpoint.
func StatusFilter(t Tier) int {
	switch t {
	case TierNormal:
		return 1
	case TierWarning:
		return 2
	case TierExpired:
		return 3
	default:
		return 0
	}
}

// ParseTier parses a tier name; ok is false for unknown names.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierNormal, TierWarning, TierExpired:
		return Tier(s), true
	}
	return "", false
}
