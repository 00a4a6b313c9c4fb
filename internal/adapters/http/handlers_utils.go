package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is required")

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return describeDecodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

// decodeOptionalBody accepts an empty body as the zero value.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) error {
	err := decodeBody(w, r, dst)
	if errors.Is(err, errEmptyBody) {
		return nil
	}
	return err
}

func describeDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var sizeErr *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return errors.New("malformed JSON")
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return fmt.Errorf("field %q has the wrong type", typeErr.Field)
		}
		return errors.New("body has the wrong type")
	case errors.As(err, &sizeErr):
		return fmt.Errorf("body exceeds %d bytes", sizeErr.Limit)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return errors.New(strings.TrimPrefix(err.Error(), "json: "))
	default:
		return err
	}
}

func writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapDomainError(err)
	logOperationError(ctx, operation, status, code, err)
	writeError(w, status, code, msg)
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	logOperationError(ctx, operation, http.StatusBadRequest, "VALIDATION_ERROR", err)
	writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body: "+err.Error())
}

func writeMissingBearerError(ctx context.Context, w http.ResponseWriter, operation string) {
	logOperationError(ctx, operation, http.StatusUnauthorized, "UNAUTHORIZED", nil)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
}
