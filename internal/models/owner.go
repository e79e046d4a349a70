package models

import "time"

// Owner is a tenant and the broker webhook its strategies trade through.
type Owner struct {
	Username  string    `gorm:"type:varchar(50);primaryKey"`
	BrokerURL string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Owner) TableName() string {
	return "owners"
}
