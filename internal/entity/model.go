package entity

import "time"

// 模型训练状态
const (
	ModelStatusProcessing = "processing"
	ModelStatusFinished   = "finished"
	ModelStatusFailed     = "failed"
	ModelStatusCanceled   = "canceled"
)

// 模型性别标签
const (
	ModelTypeMan   = "man"
	ModelTypeWoman = "woman"
)

// DbModel 表示用户的个性化训练模型。
type DbModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint   `gorm:"column:user_id;index;not null" json:"user_id"`
	Name   string `gorm:"column:name;type:varchar(64);not null" json:"name"`
	Type   string `gorm:"column:type;type:varchar(16);not null" json:"type"`

	// 服务商侧的训练任务ID与目标模型 owner/name
	TrainingID  string `gorm:"column:training_id;type:varchar(128)" json:"training_id"`
	Destination string `gorm:"column:destination;type:varchar(255)" json:"destination"`

	// 训练完成后由回调写入的版本引用，只写入一次
	ModelRef     string `gorm:"column:model_ref;type:varchar(255)" json:"modelId"`
	Status       string `gorm:"column:status;type:varchar(32);index;not null" json:"status"`
	HasGenerated bool   `gorm:"column:has_generated;not null;default:false" json:"has_generated"`
}

// TableName 指定表名。
func (DbModel) TableName() string {
	return "models"
}

// IsTerminal 判断模型是否处于训练终态。
func (m *DbModel) IsTerminal() bool {
	if m == nil {
		return false
	}
	return IsTerminalModelStatus(m.Status)
}

// IsTerminalModelStatus reports whether status is one the webhook may set.
func IsTerminalModelStatus(status string) bool {
	switch status {
	case ModelStatusFinished, ModelStatusFailed, ModelStatusCanceled:
		return true
	default:
		return false
	}
}

// ModelQuery supports listing a user's models.
type ModelQuery struct {
	BaseParams
	UserID uint   `json:"-" form:"-"`
	Status string `json:"status" form:"status"`
}

// ModelDetail 返回模型及其样本和生成结果。
type ModelDetail struct {
	DbModel
	Samples []DbSample `json:"samples"`
	Images  []DbImage  `json:"images"`
}

// ModelListResponse 模型列表响应。
type ModelListResponse struct {
	Models []DbModel `json:"models"`
	Meta   *Meta     `json:"meta"`
}
