package entity

import "time"

// DbSample 是用户上传的训练样本图片。
type DbSample struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ModelID   uint      `gorm:"column:model_id;index;not null" json:"modelId"`
	URI       string    `gorm:"column:uri;type:text;not null" json:"uri"`
}

// TableName 指定表名。
func (DbSample) TableName() string {
	return "samples"
}

// DbImage 是模型生成的图片。URI 指向自有存储，OriginalURI 保留服务商返回的地址。
type DbImage struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	ModelID     uint      `gorm:"column:model_id;index;not null" json:"modelId"`
	URI         string    `gorm:"column:uri;type:text;not null" json:"uri"`
	OriginalURI string    `gorm:"column:original_uri;type:text" json:"original_uri"`
}

// TableName 指定表名。
func (DbImage) TableName() string {
	return "images"
}
