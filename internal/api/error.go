package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	ErrCodeInvalid  = 40001
	ErrCodeEmpty    = 40002
	ErrCodeTooLarge = 40003
)

var (
	ErrEmpty    = &Error{statusCode: http.StatusBadRequest, Code: ErrCodeEmpty, Msg: "empty strategy"}
	ErrTooLarge = &Error{statusCode: http.StatusRequestEntityTooLarge, Code: ErrCodeTooLarge, Msg: "strategy too large"}
)

// Error is an api error.
type Error struct {
	statusCode int
	Code       int    `json:"code"`
	Msg        string `json:"msg"`
}

func NewError(status, code int, msg string) error {
	return &Error{
		statusCode: status,
		Code:       code,
		Msg:        msg,
	}
}

func (e *Error) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

func writeError(c *gin.Context, err error) {
	c.JSON(getStatusCode(err), err)
}

func getStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var e *Error
	if errors.As(err, &e) && e.statusCode >= http.StatusOK && e.statusCode < 600 {
		return e.statusCode
	}
	return http.StatusInternalServerError
}
