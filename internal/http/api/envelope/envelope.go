// Package envelope writes the JSON response envelope shared by every API route
// and translates handler errors into it.
package envelope

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/router-for-me/adminpanel/internal/activity"
	"github.com/router-for-me/adminpanel/internal/auth"
	"github.com/router-for-me/adminpanel/internal/db"
	"github.com/router-for-me/adminpanel/internal/errs"
	"github.com/router-for-me/adminpanel/internal/settings"
	"github.com/router-for-me/adminpanel/internal/tokens"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Meta carries pagination totals.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// ErrorBody is the error member of the envelope.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details []errs.FieldError `json:"details,omitempty"`
}

// Response is the envelope written for every API response.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// Created writes a 201 success envelope.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// Page writes a 200 success envelope with pagination meta.
func Page(c *gin.Context, data any, meta Meta) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: &meta})
}

// Message writes a 200 success envelope whose data is {"message": msg}.
func Message(c *gin.Context, msg string) {
	OK(c, gin.H{"message": msg})
}

// Error translates err and writes the failure envelope. Internal errors are
// logged with request context and reduced to a generic message.
func Error(c *gin.Context, err error) {
	apiErr := Translate(err)
	if apiErr.Code == errs.CodeInternal {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error("api: request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(apiErr.Status(), Response{
		Success: false,
		Error: &ErrorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}

// Translate maps any error onto the API taxonomy.
func Translate(err error) *errs.Error {
	if err == nil {
		return errs.Internal(errors.New("nil error"))
	}
	if apiErr, ok := errs.As(err); ok {
		return apiErr
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return errs.Validation("", fieldErrors(validationErrs)...)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.Is(err, io.EOF) {
		return errs.Validation("Request body is required")
	}
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return errs.Validation("Malformed JSON body")
	}
	var valueErr *settings.ValueError
	if errors.As(err, &valueErr) {
		return errs.Validation("", errs.FieldError{Field: "value", Message: valueErr.Err.Error()})
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return errs.InvalidCredentials()
	case errors.Is(err, auth.ErrUnauthenticated):
		return errs.Unauthorized("")
	case errors.Is(err, auth.ErrCurrentSession):
		return errs.InvalidRequest("Cannot revoke the current session")
	case errors.Is(err, auth.ErrSessionNotFound):
		return errs.NotFound("Session not found")
	case errors.Is(err, tokens.ErrTokenExpired):
		return errs.TokenExpired()
	case errors.Is(err, tokens.ErrTokenNotFound),
		errors.Is(err, tokens.ErrPurposeMismatch),
		errors.Is(err, tokens.ErrMalformedIdentifier):
		return errs.InvalidToken("")
	case errors.Is(err, activity.ErrInvalidSort), errors.Is(err, activity.ErrInvalidEntry):
		return errs.Validation(err.Error())
	case errors.Is(err, settings.ErrEmptyKey):
		return errs.Validation("", errs.FieldError{Field: "key", Message: "key is required"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.NotFound("")
	case db.IsDuplicateKey(err):
		return errs.DuplicateEntry(err)
	}
	return errs.Internal(err)
}

func fieldErrors(validationErrs validator.ValidationErrors) []errs.FieldError {
	out := make([]errs.FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, errs.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "eqfield":
		return "must match " + fe.Param()
	default:
		return "is invalid"
	}
}

var registerOnce sync.Once

// RegisterJSONFieldNames makes validation errors report JSON field names.
func RegisterJSONFieldNames() {
	registerOnce.Do(func() {
		engine, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		engine.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
}
