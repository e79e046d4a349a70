package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Strategy is one owner's trading configuration plus its execution state.
type Strategy struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	Owner string `gorm:"type:varchar(50);not null;uniqueIndex:idx_strategies_owner_name,priority:1"`
	Name  string `gorm:"type:varchar(50);not null;uniqueIndex:idx_strategies_owner_name,priority:2"`

	LongSymbol  string `gorm:"type:varchar(32)"`
	ShortSymbol string `gorm:"type:varchar(32)"`

	CashBalance     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	InCooldown      bool            `gorm:"not null;default:false"`
	CooldownEndTime *time.Time      `gorm:"type:timestamptz"`

	// APICalls holds the bounded broker call history as a JSON array.
	APICalls datatypes.JSON `gorm:"column:api_calls;type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz"`
	UpdatedAt time.Time `gorm:"type:timestamptz"`
}

func (Strategy) TableName() string {
	return "strategies"
}
