package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vcdist/vcd/cmd/vcd/service"
	"github.com/vcdist/vcd/common/logger"
)

// apiError is the JSON body of every error response
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	ClaimID *int64 `json:"id,omitempty"`
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrNotOpen, http.StatusForbidden, "not_open"},
	{service.ErrClosed, http.StatusForbidden, "closed"},
	{service.ErrCampaignLocked, http.StatusLocked, "campaign_locked"},
	{service.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{service.ErrNoStock, http.StatusConflict, "no_stock"},
	{service.ErrReceivedBySomeone, http.StatusConflict, "received_by_someone"},
	{service.ErrSameIPReceivedBefore, http.StatusForbidden, "same_ip_received_before"},
	{service.ErrUserNotInWhitelist, http.StatusForbidden, "user_not_in_whitelist"},
	{service.ErrTrustLevelNotMatch, http.StatusForbidden, "trust_level_not_match"},
	{service.ErrVerificationFailed, http.StatusForbidden, "verification_failed"},
	{service.ErrRuleNotMatch, http.StatusForbidden, "rule_not_match"},
	{service.ErrCampaignNotFound, http.StatusNotFound, "not_found"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{service.ErrInvalidCampaign, http.StatusBadRequest, "invalid_request"},
	{service.ErrHasClaims, http.StatusConflict, "has_claims"},
}

// classify maps an error to status, code and message
func classify(err error) (int, apiError) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status, apiError{Error: e.code, Message: messageFor(err, e.err)}
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return he.Code, apiError{Error: codeForStatus(he.Code), Message: msg}
	}

	return http.StatusInternalServerError, apiError{Error: "internal_error", Message: "internal server error"}
}

// messageFor keeps validation details but hides wrapped infrastructure errors
func messageFor(err, sentinel error) string {
	if errors.Is(sentinel, service.ErrInvalidCampaign) {
		return err.Error()
	}
	return sentinel.Error()
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "error"
	}
}

// ErrorHandler renders errors returned by handlers as apiError JSON
func ErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := classify(err)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Warn("failed to write error response", "error", err)
		}
	}
}
