package response

import (
	"Parley/internal/api/dto"
	"Parley/internal/service"
	"errors"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

const (
	Ok                  = 200
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
)

// Success 成功返回封装
func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, dto.Response{
		Code:    Ok,
		Message: "success",
		Data:    data,
	})
}

// Fail 失败返回封装
func Fail(c *gin.Context, businessCode int, message string) {
	c.JSON(http.StatusOK, dto.Response{
		Code:    businessCode,
		Message: message,
		Data:    nil,
	})
}

// Error 处理错误，未归类的错误不向客户端暴露细节
func Error(c *gin.Context, err error) {
	code, message := Resolve(err)
	if code == InternalServerError {
		log.ErrorContext(c.Request.Context(), "Error", "err", err)
	}
	Fail(c, code, message)
}

// Resolve 错误转业务码与提示，WebSocket 下行同样使用
func Resolve(err error) (int, string) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return BadRequest, service.ErrParamInvalid.Error()
	}

	var unmarshalTypeError *json.UnmarshalTypeError
	if errors.As(err, &unmarshalTypeError) {
		return BadRequest, "Json错误"
	}

	code, ok := service.CodeOf(err)
	if !ok {
		return InternalServerError, service.UnExpectedError.Error()
	}
	return code, err.Error()
}
