package entity

// Re-export common types from the common package.

import (
	"retratai/internal/entity/common"
)

type Meta = common.Meta
type BaseParams = common.BaseParams
