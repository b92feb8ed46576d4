package domain

// TrendPoint is one bucket of the outbound trend series.
type TrendPoint struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// WarningBatches groups the batches inside their expiry window.
type WarningBatches struct {
	Count int             `json:"count"`
	Items []InventoryItem `json:"items,omitempty"`
}

// DashboardStats is the server-computed dashboard aggregate.
type DashboardStats struct {
	TotalBatches   int            `json:"total_batches"`
	WarningBatches WarningBatches `json:"warning_batches"`
	ExpiredBatches int            `json:"expired_batches"`
	OutboundTrend  []TrendPoint   `json:"outbound_trend"`
}

// Clone returns a deep copy.
func (s DashboardStats) Clone() DashboardStats {
	if s.OutboundTrend != nil {
		s.OutboundTrend = append([]TrendPoint(nil), s.OutboundTrend...)
	}
	if s.WarningBatches.Items != nil {
		items := make([]InventoryItem, len(s.WarningBatches.Items))
		for i, it := range s.WarningBatches.Items {
			items[i] = it.Clone()
		}
		s.WarningBatches.Items = items
	}
	return s
}

// StatsSource says where a StatsSummary came from.
type StatsSource string

const (
	StatsFromServer StatsSource = "server"
	StatsFromLocal  StatsSource = "local"
)

// StatsSummary is the derived headline numbers shown on the dashboard.
type StatsSummary struct {
	Total   int         `json:"total"`
	Warning int         `json:"warning"`
	Expired int         `json:"expired"`
	Source  StatsSource `json:"source"`
}

// TrendBar is a trend point ready for rendering.
type TrendBar struct {
	Label string `json:"label"`
	Value int    `json:"value"`
	Color string `json:"color"`
}
