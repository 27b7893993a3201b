package chi

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tradematch/internal/domain"
	logpkg "github.com/kailas-cloud/tradematch/internal/logger"
)

// ErrorCode is the machine-readable error code in every error response.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeForbidden              ErrorCode = "forbidden"
	CodeItemNotFound           ErrorCode = "item_not_found"
	CodeMemberNotFound         ErrorCode = "member_not_found"
	CodeRateLimited            ErrorCode = "rate_limited"
	CodeEmbeddingQuotaExceeded ErrorCode = "embedding_quota_exceeded"
	CodeAICallFailed           ErrorCode = "ai_call_failed"
	CodeAIResponseParseFailed  ErrorCode = "ai_response_parse_failed"
	CodeAIAuthFailed           ErrorCode = "ai_auth_failed"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// errorHandlers maps sentinels to responses, most specific first.
var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrInvalidWeights, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrItemNotFound, http.StatusNotFound, CodeItemNotFound),
	sentinelHandler(domain.ErrMemberNotFound, http.StatusNotFound, CodeMemberNotFound),
	sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
	sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, CodeEmbeddingQuotaExceeded),
	sentinelHandler(domain.ErrAIAuthFailed, http.StatusBadGateway, CodeAIAuthFailed),
	sentinelHandler(domain.ErrAIResponseParseFailed, http.StatusBadGateway, CodeAIResponseParseFailed),
	sentinelHandler(domain.ErrAICallFailed, http.StatusBadGateway, CodeAICallFailed),
}

// clientMessage returns a message safe to show to API clients. Validation
// errors carry the offending field; everything else only its sentinel text.
func clientMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrInvalidWeights) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrItemNotFound,
		domain.ErrMemberNotFound,
		domain.ErrRateLimited,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrAIAuthFailed,
		domain.ErrAIResponseParseFailed,
		domain.ErrAICallFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, clientMessage(err))
		return true
	}
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	for _, h := range errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
