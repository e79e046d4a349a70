package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Execution is the journal row written after each handled signal.
type Execution struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	ExecutionID string `gorm:"type:varchar(36);not null;uniqueIndex" json:"execution_id"`
	Owner       string `gorm:"type:varchar(50);not null;index:idx_executions_owner_strategy,priority:1" json:"owner"`
	Strategy    string `gorm:"type:varchar(50);not null;index:idx_executions_owner_strategy,priority:2" json:"strategy"`

	Signal string `gorm:"type:varchar(200);not null" json:"signal"`
	Force  bool   `gorm:"not null;default:false" json:"force"`
	Status string `gorm:"type:varchar(20);not null;index" json:"status"`
	Detail string `gorm:"type:varchar(50)" json:"detail,omitempty"`
	Reason string `gorm:"type:text" json:"reason,omitempty"`

	CashBalance decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"cash_balance"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (Execution) TableName() string {
	return "executions"
}
