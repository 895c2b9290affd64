package handler

import (
	"Parley/internal/pkg/util"

	"github.com/gin-gonic/gin"
)

// pathID 解析路径中的正整数 ID
func pathID(c *gin.Context, name string) (uint64, bool) {
	return util.ParseUint64(c.Param(name))
}
