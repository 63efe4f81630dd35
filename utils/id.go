package utils

import (
	"github.com/google/uuid"
)

// LocalIDPrefix 本地临时标识前缀
const LocalIDPrefix = "local-"

// GenerateLocalID 生成上传完成前使用的本地临时标识
func GenerateLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}
