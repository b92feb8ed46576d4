package domain

// ApprovalStatus is the workflow axis of an outbound request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Terminal reports whether no further approval transition exists.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// CanTransition reports whether s -> to is an edge of the approval state
// machine. Only PENDING has outgoing edges, and each fires at most once.
func (s ApprovalStatus) CanTransition(to ApprovalStatus) bool {
	return s == ApprovalPending && to.Terminal()
}

// Valid reports whether s is a known approval status.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

// OutboundStatus is the physical lifecycle of an opened unit.
type OutboundStatus string

const (
	OutboundUsing    OutboundStatus = "USING"
	OutboundFinished OutboundStatus = "FINISHED"
)

// CanTransition reports whether s -> to is an edge. USING -> FINISHED is
// the only one.
func (s OutboundStatus) CanTransition(to OutboundStatus) bool {
	return s == OutboundUsing && to == OutboundFinished
}

// UserRef is the user snapshot embedded in outbound records.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	RealName string `json:"real_name"`
	Role     string `json:"role,omitempty"`
}

// OutboundItem is a consumption request against a single batch.
type OutboundItem struct {
	ID              int64          `json:"id"`
	OutboundNo      string         `json:"outbound_no"`
	InventoryID     int64          `json:"inventory_id"`
	Inventory       *InventoryItem `json:"inventory,omitempty"`
	UserID          int64          `json:"user_id"`
	User            *UserRef       `json:"user,omitempty"`
	Quantity        int            `json:"quantity"`
	Purpose         string         `json:"purpose"`
	Status          OutboundStatus `json:"status"`
	ApprovalStatus  ApprovalStatus `json:"approval_status"`
	ApprovalOpinion string         `json:"approval_opinion,omitempty"`
	ApproverID      *int64         `json:"approver_id,omitempty"`
	Approver        *UserRef       `json:"approver,omitempty"`
	ApprovalTime    *string        `json:"approval_time,omitempty"`
	OpeningDate     Date           `json:"opening_date"`
	Remarks         string         `json:"remarks"`
	SnapExpiryDate  Date           `json:"snap_expiry_date"`
	ApplyDate       string         `json:"apply_date,omitempty"`
	CreatedAt       string         `json:"created_at,omitempty"`
	UpdatedAt       string         `json:"updated_at,omitempty"`

	// Flat fields still sent by older server builds.
	MaterialName  string `json:"material_name,omitempty"`
	MaterialCode  string `json:"material_code,omitempty"`
	Spec          string `json:"spec,omitempty"`
	Unit          string `json:"unit,omitempty"`
	BatchNo       string `json:"batch_no,omitempty"`
	ApplicantName string `json:"applicant_name,omitempty"`
}

// Clone returns a copy that shares no pointers with o.
func (o OutboundItem) Clone() OutboundItem {
	if o.Inventory != nil {
		inv := o.Inventory.Clone()
		o.Inventory = &inv
	}
	if o.User != nil {
		u := *o.User
		o.User = &u
	}
	if o.Approver != nil {
		a := *o.Approver
		o.Approver = &a
	}
	if o.ApproverID != nil {
		id := *o.ApproverID
		o.ApproverID = &id
	}
	if o.ApprovalTime != nil {
		at := *o.ApprovalTime
		o.ApprovalTime = &at
	}
	return o
}

// ApplyRequest is the body of POST /api/v1/outbound/apply. Quantity is not
// checked against the batch balance here; the server is the authority.
type ApplyRequest struct {
	InventoryID int64  `json:"inventory_id" validate:"required"`
	OpeningDate string `json:"opening_date" validate:"required,date"`
	Purpose     string `json:"purpose" validate:"required"`
	Quantity    int    `json:"quantity" validate:"gt=0"`
	Remarks     string `json:"remarks,omitempty"`
}

// AuditRequest is the body of POST /api/v1/outbound/audit.
type AuditRequest struct {
	ID       int64  `json:"id" validate:"required"`
	Approved bool   `json:"approved"`
	Opinion  string `json:"opinion,omitempty"`
}

// Decision returns the approval status the request asks for.
func (r AuditRequest) Decision() ApprovalStatus {
	if r.Approved {
		return ApprovalApproved
	}
	return ApprovalRejected
}

// Page is one server-side page of a list.
type Page[T any] struct {
	Items []T `json:"list"`
	Total int `json:"total"`
}
