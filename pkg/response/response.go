package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/cuaderno-api/pkg/errors"
)

// Payload carries the fields merged next to the ok flag of a success envelope.
type Payload map[string]interface{}

// ErrorEnvelope is the body of every failed request.
type ErrorEnvelope struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON sends a success response of the form {"ok": true, ...payload}.
func JSON(c *gin.Context, status int, payload Payload) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	body := gin.H{"ok": true}
	for k, v := range payload {
		if k == "ok" {
			continue
		}
		body[k] = v
	}
	c.JSON(status, body)
}

// OK responds with HTTP 200.
func OK(c *gin.Context, payload Payload) {
	JSON(c, http.StatusOK, payload)
}

// Error sends an error response converting the error to the common structure.
// Only the public code and message are written; wrapped causes stay server-side.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	_ = c.Error(err)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(appErr.Status, ErrorEnvelope{OK: false, Code: appErr.Code, Message: appErr.Message})
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// File streams a generated document as an attachment.
func File(c *gin.Context, filename, contentType string, body []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, body)
}
