package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"knowledgehub/internal/domain"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondDomainError picks the status and code from the error kind.
func RespondDomainError(c *gin.Context, err error) {
	status, code := Classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	RespondError(c, status, code, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// Classify maps an error to an HTTP status and a stable error code.
func Classify(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported_format"
	case errors.Is(err, domain.ErrEmbeddingDimension):
		return http.StatusBadRequest, "embedding_dimension"
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest, "invalid_configuration"
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrDuplicateDocument):
		return http.StatusConflict, "duplicate_document"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, domain.ErrEmbeddingProvider):
		return http.StatusServiceUnavailable, "embedding_provider"
	case errors.Is(err, domain.ErrGeneration):
		return http.StatusBadGateway, "generation_failed"
	case errors.Is(err, domain.ErrStreamCancelled):
		return 499, "stream_cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// WriteSSE writes one server-sent event. Multi-line data is split into
// several data fields.
func WriteSSE(w http.ResponseWriter, event string, data string) error {
	if strings.TrimSpace(event) != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", strings.TrimSpace(event)); err != nil {
			return err
		}
	}
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}
