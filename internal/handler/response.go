package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
	"github.com/JoelVR17/Trustless-Work-Test/internal/token"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/logger"
)

// Context keys set by the auth middleware.
const (
	ContextCaller = "caller"
	ContextRole   = "role"
)

// Caller returns the attested caller address, or "" when the request is
// unauthenticated.
func Caller(c *gin.Context) escrow.Address {
	v, ok := c.Get(ContextCaller)
	if !ok {
		return ""
	}
	addr, _ := v.(escrow.Address)
	return addr
}

// StatusFor maps an escrow error code to its HTTP status.
func StatusFor(code escrow.Code) int {
	switch code {
	case escrow.CodeUnauthorized:
		return http.StatusForbidden
	case escrow.CodeNotFound:
		return http.StatusNotFound
	case escrow.CodeInvalidInput:
		return http.StatusBadRequest
	case escrow.CodeInvalidState,
		escrow.CodeAlreadyFunded,
		escrow.CodeAlreadyCompleted,
		escrow.CodeObjectiveNotFunded,
		escrow.CodeIncompleteObjectives:
		return http.StatusConflict
	case escrow.CodeInsufficientFunds, escrow.CodeInsufficientAllowance:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(code escrow.Code, message string) gin.H {
	return gin.H{"error": message, "code": string(code)}
}

// respondError writes {"error","code"}. Internal failures are logged and
// their message is not exposed.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	err = token.Translate(err)
	code := escrow.CodeOf(err)
	status := StatusFor(code)

	message := err.Error()
	var e *escrow.Error
	if errors.As(err, &e) && e.Code != escrow.CodeInternal {
		message = e.Message
	}
	if status == http.StatusInternalServerError {
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, errorBody(code, message))
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody(escrow.CodeInvalidInput, message))
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}
