package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUsernameExists     = 40001
	CodeEmailExists        = 40002
	CodeInvalidChunking    = 40003
	CodeUnsupportedFile    = 40004
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeChatbotNotFound    = 40401
	CodeJobNotFound        = 40402
	CodeShareIDTaken       = 40900
	CodeInputRejected      = 42200
	CodeInternalServer     = 50000
	CodeAsyncDisabled      = 50100
	CodeUpstreamError      = 50200
	CodeIndexUnavailable   = 50300
	CodePartialUpload      = 50301
	CodeUpstreamTimeout    = 50400
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Accepted(c *gin.Context, data interface{}) {
	c.JSON(202, APIResponse{
		Code:    CodeOK,
		Message: "accepted",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData is Error plus a payload, e.g. counts of a partial upload.
func ErrorWithData(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}
