package testutil

import (
	"fmt"
	"time"

	"github.com/labtrack/labtrack-client/internal/domain"
)

// MaterialFixture builds a material with sensible defaults.
func MaterialFixture(id int64, opts ...func(*domain.Material)) domain.Material {
	m := domain.Material{
		ID:       id,
		Code:     fmt.Sprintf("MAT-%03d", id),
		Name:     fmt.Sprintf("Reagent %d", id),
		Category: "Reagent",
		Spec:     "500ml",
		Unit:     "bottle",
		Brand:    "Acme",
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// WithAlertDays sets the material's expiry warning window.
func WithAlertDays(days int) func(*domain.Material) {
	return func(m *domain.Material) { m.ExpiryAlertDays = &days }
}

// InventoryFixture builds a batch of material expiring on expiry.
func InventoryFixture(id int64, material domain.Material, qty int, expiry time.Time) domain.InventoryItem {
	return domain.InventoryItem{
		ID:         id,
		MaterialID: material.ID,
		Material:   &material,
		BatchNo:    fmt.Sprintf("B%04d", id),
		InboundNo:  fmt.Sprintf("IN%04d", id),
		InitialQty: qty,
		CurrentQty: qty,
		ExpiryDate: domain.NewDate(expiry.Year(), expiry.Month(), expiry.Day()),
	}
}

// OutboundFixture builds a PENDING, USING outbound request against item.
func OutboundFixture(id int64, item domain.InventoryItem, qty int) domain.OutboundItem {
	inv := item.Clone()
	return domain.OutboundItem{
		ID:             id,
		OutboundNo:     fmt.Sprintf("OUT%04d", id),
		InventoryID:    item.ID,
		Inventory:      &inv,
		UserID:         1,
		User:           &domain.UserRef{ID: 1, Username: "amy", RealName: "Amy Li"},
		Quantity:       qty,
		Purpose:        "assay",
		Status:         domain.OutboundUsing,
		ApprovalStatus: domain.ApprovalPending,
		OpeningDate:    domain.NewDate(2026, time.March, 10),
		SnapExpiryDate: item.ExpiryDate,
	}
}

// StatsFixture builds a dashboard aggregate.
func StatsFixture(total, warning, expired int, trend ...int) domain.DashboardStats {
	points := make([]domain.TrendPoint, len(trend))
	for i, v := range trend {
		points[i] = domain.TrendPoint{Label: fmt.Sprintf("W%d", i+1), Value: v}
	}
	return domain.DashboardStats{
		TotalBatches:   total,
		WarningBatches: domain.WarningBatches{Count: warning},
		ExpiredBatches: expired,
		OutboundTrend:  points,
	}
}

// Today is the fixed instant tests classify against.
var Today = time.Date(2026, 3, 10, 15, 45, 0, 0, time.UTC)

// DaysFromToday returns midnight UTC n days after Today.
func DaysFromToday(n int) time.Time {
	d := time.Date(Today.Year(), Today.Month(), Today.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, n)
}
