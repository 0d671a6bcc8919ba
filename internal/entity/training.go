package entity

// TrainModelRequest 训练提交请求。Type 为旧版字段，Gender 为空时使用。
type TrainModelRequest struct {
	URLs   []string `json:"urls"`
	Name   string   `json:"name"`
	Gender string   `json:"gender"`
	Type   string   `json:"type,omitempty"`
}

// ResolvedGender 返回规范化后的性别标签。
func (r TrainModelRequest) ResolvedGender() string {
	if r.Gender != "" {
		return r.Gender
	}
	return r.Type
}

// TrainModelResponse 训练提交成功的响应。
type TrainModelResponse struct {
	Message string  `json:"message"`
	Model   DbModel `json:"model"`
}

// GenerateImagesRequest 生成请求。
type GenerateImagesRequest struct {
	ModelID uint `json:"modelId"`
}

// GenerateImagesResponse 生成成功的响应。
type GenerateImagesResponse struct {
	Message string    `json:"message"`
	Images  []DbImage `json:"images,omitempty"`
}

// TrainingWebhookPayload 是训练服务商回调的请求体。
type TrainingWebhookPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  any    `json:"error,omitempty"`
	Output *struct {
		Version string `json:"version"`
		Weights string `json:"weights,omitempty"`
	} `json:"output,omitempty"`
}

// Version 返回回调中携带的模型版本引用。
func (p TrainingWebhookPayload) Version() string {
	if p.Output == nil {
		return ""
	}
	return p.Output.Version
}

// MessageResponse 仅包含 message 的通用响应。
type MessageResponse struct {
	Message string `json:"message"`
}

// UploadResponse 上传成功的响应。
type UploadResponse struct {
	URL string `json:"url"`
}
