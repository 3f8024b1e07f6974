package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
)

const maxErrorBody = 64 << 10

var codeKinds = map[string]error{
	models.CodeValidation:    shared.ErrValidation,
	models.CodeQuotaExceeded: shared.ErrQuotaExceeded,
	models.CodeForbidden:     shared.ErrForbidden,
	models.CodeNotFound:      shared.ErrJobNotFound,
	models.CodeNotReady:      shared.ErrNotReady,
	models.CodeConflict:      shared.ErrConflict,
	models.CodeTokenInvalid:  shared.ErrTokenInvalid,
	models.CodeTokenExpired:  shared.ErrTokenExpired,
	models.CodeTokenRevoked:  shared.ErrTokenRevoked,
}

// decodeAPIError reads an error response into a [shared.APIError].
//
// The envelope code decides the kind when present; the status code is the fallback.
func decodeAPIError(resp *http.Response) *shared.APIError {
	apiErr := &shared.APIError{Status: resp.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var envelope models.ErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
		apiErr.Message = text
	}

	if kind, ok := codeKinds[apiErr.Code]; ok {
		apiErr.Kind = kind
		return apiErr
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		apiErr.Kind = shared.ErrValidation
	case http.StatusUnauthorized:
		apiErr.Kind = shared.ErrSessionExpired
	case http.StatusForbidden:
		apiErr.Kind = shared.ErrForbidden
	case http.StatusNotFound:
		apiErr.Kind = shared.ErrJobNotFound
	case http.StatusConflict:
		apiErr.Kind = shared.ErrConflict
	default:
		apiErr.Kind = shared.ErrServer
	}
	return apiErr
}

// classifyTransport maps an error from [http.Client.Do] to the registry taxonomy.
func classifyTransport(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, shared.ErrNotAuthenticated) {
		return fmt.Errorf("%w: no active session", shared.ErrSessionExpired)
	}
	return fmt.Errorf("%w: %v", shared.ErrNetwork, err)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
