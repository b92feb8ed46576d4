package domain

import "encoding/json"

// Material is a consumable definition. Code is the business key, ID the
// server key.
type Material struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Spec     string `json:"spec"`
	Unit     string `json:"unit"`
	Brand    string `json:"brand"`
	// SafetyStock is the reorder threshold.
	SafetyStock *int `json:"safety_stock,omitempty"`
	// ExpiryAlertDays overrides the global expiry warning window.
	ExpiryAlertDays *int `json:"expiry_alert_days,omitempty"`
	// OpenedExpiryDays is the shelf life after opening.
	OpenedExpiryDays *int   `json:"opened_expiry_days,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

// UnmarshalJSON accepts both opened_expiry_days and the older
// open_expiry_days spelling.
func (m *Material) UnmarshalJSON(b []byte) error {
	type plain Material
	var aux struct {
		plain
		OpenExpiryDays *int `json:"open_expiry_days,omitempty"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*m = Material(aux.plain)
	if m.OpenedExpiryDays == nil {
		m.OpenedExpiryDays = aux.OpenExpiryDays
	}
	return nil
}

// Clone returns a copy that shares no pointers with m.
func (m Material) Clone() Material {
	m.SafetyStock = cloneInt(m.SafetyStock)
	m.ExpiryAlertDays = cloneInt(m.ExpiryAlertDays)
	m.OpenedExpiryDays = cloneInt(m.OpenedExpiryDays)
	return m
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// AlertWindow returns the material-specific expiry window, if any.
func (m *Material) AlertWindow() (int, bool) {
	if m == nil || m.ExpiryAlertDays == nil || *m.ExpiryAlertDays < 0 {
		return 0, false
	}
	return *m.ExpiryAlertDays, true
}

// CreateMaterialRequest is the body of POST /api/v1/materials.
type CreateMaterialRequest struct {
	Code             string `json:"code" validate:"required,max=64"`
	Name             string `json:"name" validate:"required,max=128"`
	Category         string `json:"category"`
	Spec             string `json:"spec"`
	Unit             string `json:"unit" validate:"required"`
	Brand            string `json:"brand"`
	SafetyStock      *int   `json:"safety_stock,omitempty" validate:"omitempty,gte=0"`
	ExpiryAlertDays  *int   `json:"expiry_alert_days,omitempty" validate:"omitempty,gte=0"`
	OpenedExpiryDays *int   `json:"opened_expiry_days,omitempty" validate:"omitempty,gte=0"`
}
