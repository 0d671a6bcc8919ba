package entity

// ModelUpdates 模型更新字段
type ModelUpdates struct {
	TrainingID  *string
	Destination *string
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u ModelUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.TrainingID != nil {
		updates["training_id"] = *u.TrainingID
	}
	if u.Destination != nil {
		updates["destination"] = *u.Destination
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u ModelUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}
