package api

import (
	"net/http"
	"strings"

	"PPSignal/logger"
	"PPSignal/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Msg is the error body of every endpoint.
type Msg struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	Detail  string `json:"detail,omitempty"`
}

func httpStatus(code int) int {
	switch code {
	case errs.ArgsError:
		return http.StatusBadRequest
	case errs.RecordNotFoundError:
		return http.StatusNotFound
	case errs.UnauthorizedError:
		return http.StatusUnauthorized
	case errs.UnavailableError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a Msg. Internal errors are logged and their detail
// is not echoed.
func fail(c *gin.Context, err error) {
	var ce *errs.CodeError
	if errors.As(err, &ce) {
		c.AbortWithStatusJSON(httpStatus(ce.Code), Msg{Code: ce.Code, Msg: ce.Msg, Detail: ce.Detail})
		return
	}
	logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, Msg{Code: errs.ServerInternalError, Msg: "ServerInternalError"})
}

func badRequest(c *gin.Context, detail string) {
	fail(c, errs.ErrArgs.WrapMsg(detail))
}

// validID trims s and rejects the placeholder ids browsers send for
// unset variables.
func validID(s string, max int) (string, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "undefined", "null", "none":
		return "", false
	}
	if max > 0 && len(s) > max {
		return "", false
	}
	return s, true
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "invalid json body: "+err.Error())
		return false
	}
	return true
}
