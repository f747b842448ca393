package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var statusByCode = map[string]int{
	codesearch.CodeInvalidPath:             http.StatusBadRequest,
	codesearch.CodeEmptyCorpus:             http.StatusUnprocessableEntity,
	codesearch.CodeIndexNotFound:           http.StatusNotFound,
	codesearch.CodeInvalidQuery:            http.StatusBadRequest,
	codesearch.CodeNotFound:                http.StatusNotFound,
	codesearch.CodeCollaboratorUnavailable: http.StatusServiceUnavailable,
	codesearch.CodeInternal:                http.StatusInternalServerError,
}

// handleError writes every error as an ErrorResponse. Internal errors are
// logged and their message is not returned to the client.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := s.errorResponse(err, c)

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		s.logger.Error("writing error response", zap.Error(writeErr))
	}
}

func (s *Server) errorResponse(err error, c echo.Context) (int, ErrorResponse) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, ErrorResponse{Error: httpErrorCode(he.Code), Message: msg}
	}

	code := codesearch.Code(err)
	status := statusByCode[code]
	if code == codesearch.CodeInternal {
		s.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return status, ErrorResponse{Error: code, Message: "internal server error"}
	}
	return status, ErrorResponse{Error: code, Message: err.Error()}
}

func httpErrorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return codesearch.CodeNotFound
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusInternalServerError:
		return codesearch.CodeInternal
	default:
		return "http_error"
	}
}
