package domain

// InventoryItem is one receipt lot (batch) of a material. Material is a
// snapshot embedded by the server at fetch time, not a live reference.
type InventoryItem struct {
	ID         int64     `json:"id"`
	MaterialID int64     `json:"material_id"`
	Material   *Material `json:"material,omitempty"`
	BatchNo    string    `json:"batch_no"`
	InboundNo  string    `json:"inbound_no"`
	InitialQty int       `json:"initial_qty"`
	CurrentQty int       `json:"current_qty"`
	ExpiryDate Date      `json:"expiry_date"`
	CreatedAt  string    `json:"created_at,omitempty"`
	UpdatedAt  string    `json:"updated_at,omitempty"`
}

// Depleted reports whether the batch has been fully consumed. Depleted
// batches stay listed for history.
func (i InventoryItem) Depleted() bool {
	return i.CurrentQty <= 0
}

// MaterialName returns the embedded material's name, or "" without a snapshot.
func (i InventoryItem) MaterialName() string {
	if i.Material == nil {
		return ""
	}
	return i.Material.Name
}

// Clone returns a copy that shares no pointers with i.
func (i InventoryItem) Clone() InventoryItem {
	if i.Material != nil {
		m := i.Material.Clone()
		i.Material = &m
	}
	return i
}

// InboundMode controls how an inbound record merges with an existing batch.
type InboundMode string

const (
	InboundAppend    InboundMode = "append"
	InboundOverwrite InboundMode = "overwrite"
)

// InboundRequest is the body of POST /api/v1/inventory/inbound. The material
// is created on the fly when its code is unknown to the server.
type InboundRequest struct {
	BatchNo      string      `json:"batchNo" validate:"required"`
	InboundNo    string      `json:"inboundNo" validate:"required"`
	MaterialCode string      `json:"materialCode" validate:"required"`
	MaterialName string      `json:"materialName" validate:"required"`
	Category     string      `json:"category"`
	Spec         string      `json:"spec"`
	Unit         string      `json:"unit"`
	Brand        string      `json:"brand"`
	Quantity     int         `json:"quantity" validate:"gt=0"`
	ExpiryDate   string      `json:"expiryDate" validate:"required,date"`
	Mode         InboundMode `json:"mode,omitempty" validate:"omitempty,oneof=append overwrite"`
}

// BatchImportResult summarizes a server-side spreadsheet import.
type BatchImportResult struct {
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}
