package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// DatabaseErrorMessage describes SQL store failures.
	DatabaseErrorMessage = "database operation failed"

	ConversationNotFoundMessage = "Conversation not found"
	FeedbackExistsMessage       = "Feedback already submitted for this conversation"
	JudgeFailedMessage          = "Evaluation failed"
)

// Sentinels matched with errors.Is. AppError forwards Is to its wrapped error.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrGuardrail     = errors.New("guardrail rejection")
	ErrJudge         = errors.New("judge failure")
	ErrToolCall      = errors.New("tool call failure")
	ErrInvalidInput  = errors.New("invalid input")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
	// Code is a short machine readable identifier for API clients.
	Code string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WithCode sets the machine readable code and returns the same error.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func NotFound(message string) *AppError {
	return New(ErrNotFound, http.StatusNotFound, message).WithCode("not_found")
}

func AlreadyExists(message string) *AppError {
	return New(ErrAlreadyExists, http.StatusConflict, message).WithCode("already_exists")
}

func InvalidInput(message string) *AppError {
	return New(ErrInvalidInput, http.StatusBadRequest, message).WithCode("invalid_request")
}

// GuardrailRejected carries the refusal text shown to the user.
func GuardrailRejected(cause error, refusal string) *AppError {
	return New(fmt.Errorf("%w: %w", ErrGuardrail, cause), http.StatusBadRequest, refusal).WithCode("guardrail_rejection")
}

func JudgeFailed(cause error) *AppError {
	return New(fmt.Errorf("%w: %w", ErrJudge, cause), http.StatusBadGateway, JudgeFailedMessage).WithCode("judge_failure")
}

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(fmt.Errorf("%w: %w", ErrNotFound, err), http.StatusNotFound, ConversationNotFoundMessage).WithCode("not_found")
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage).WithCode("store_unavailable")
}

// WrapDB maps gorm errors to AppError.
func WrapDB(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return New(fmt.Errorf("%w: %w", ErrNotFound, err), http.StatusNotFound, ConversationNotFoundMessage).WithCode("not_found")
	}
	return New(err, http.StatusBadGateway, DatabaseErrorMessage).WithCode("store_unavailable")
}

// StatusOf returns the HTTP status and safe message for any error.
func StatusOf(err error) (int, string, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		code := appErr.Code
		if code == "" {
			code = "error"
		}
		return appErr.Status, appErr.Message, code
	}
	return http.StatusInternalServerError, SystemErrorMessage, "internal_error"
}
