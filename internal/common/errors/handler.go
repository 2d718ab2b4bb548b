package errors

import "net/http"

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Success bool           `json:"success"`
	Error   *StandardError `json:"error"`
}

// ErrorHandler maps errors onto HTTP responses and logs them once.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Resolve normalizes err, logs it at a level matching its status and returns
// the status code plus response body.
func (h *ErrorHandler) Resolve(operation string, err error) (int, ErrorResponse) {
	stdErr := Normalize(err)
	status := HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"operation": operation,
		"errorCode": stdErr.Code,
		"message":   stdErr.Message,
		"details":   stdErr.Details,
		"retryable": stdErr.Retryable,
		"category":  GetErrorCategory(stdErr.Code),
	}
	if h.logger != nil {
		if status >= http.StatusInternalServerError {
			h.logger.Error("request failed", fields)
		} else {
			h.logger.Warn("request rejected", fields)
		}
	}

	return status, ErrorResponse{Success: false, Error: stdErr}
}

// HTTPStatus maps an error code to the response status used by the HTTP APIs.
// Provider failures on single sends are not routed through here; those return
// 200 with success=false.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeUnsupportedChannel, ErrCodeTemplateRenderFailed:
		return http.StatusBadRequest
	case ErrCodeTemplateNotFound, ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeTemplateAlreadyExists, ErrCodeEmailAlreadyRegistered:
		return http.StatusConflict
	case ErrCodeInvalidCredentials, ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case ErrCodeAccountLocked, ErrCodeAccountInactive, ErrCodeEmailNotVerified:
		return http.StatusForbidden
	case ErrCodeProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
