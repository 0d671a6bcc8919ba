package entity

import "time"

// DbCredit 保存用户的训练额度余额，每个用户一行。
type DbCredit struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`
	Credits   int       `gorm:"column:credits;not null;default:0" json:"credits"`
}

// TableName 指定表名。
func (DbCredit) TableName() string {
	return "credits"
}

// CreditBalanceResponse 返回当前用户的额度。
type CreditBalanceResponse struct {
	Credits             int  `json:"credits"`
	MonetizationEnabled bool `json:"monetization_enabled"`
}
