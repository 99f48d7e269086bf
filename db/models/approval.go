package models

// Approval is the persisted form of a gate approval record. Timestamps are
// unix seconds; nullable columns stay pointers so "never decided" survives a
// round trip.
type Approval struct {
	ID            string   `gorm:"column:id;type:text;primaryKey"`
	OperationType string   `gorm:"column:operation_type;type:text;not null"`
	RiskTier      string   `gorm:"column:risk_tier;type:text;not null"`
	Reason        string   `gorm:"column:reason;type:text"`
	Amount        *float64 `gorm:"column:amount"`
	UserText      string   `gorm:"column:user_text;type:text"`
	Status        string   `gorm:"column:status;type:text;not null;index:idx_approvals_status"`
	Actor         string   `gorm:"column:actor;type:text"`
	CreatedAt     int64    `gorm:"column:created_at;not null"`
	ExpiresAt     *int64   `gorm:"column:expires_at"`
	DecidedAt     *int64   `gorm:"column:decided_at;index:idx_approvals_decided_at"`
}

func (Approval) TableName() string { return "approvals" }
