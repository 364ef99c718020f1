package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a Redis key miss.
	RedisNotFoundMessage = "redis key not found"
	// StorageErrorMessage describes asset storage failures.
	StorageErrorMessage = "asset storage operation failed"
	// ProviderErrorMessage describes a failed call to a generative provider.
	ProviderErrorMessage = "provider call failed"
)

// Kind classifies an AppError so orchestration code can react to it.
type Kind string

const (
	KindInternal              Kind = "internal"
	KindRedis                 Kind = "redis"
	KindStorage               Kind = "storage"
	KindProvider              Kind = "provider"
	KindEmptyProviderResponse Kind = "empty_provider_response"
	KindSchemaValidation      Kind = "schema_validation"
	KindUnknownProvider       Kind = "unknown_provider"
	KindMediaAssembly         Kind = "media_assembly"
	KindSceneGeneration       Kind = "scene_generation"
	KindPipelineCancelled     Kind = "pipeline_cancelled"
)

// Sentinels for errors.Is matching against an AppError's kind.
var (
	ErrEmptyProviderResponse = errors.New("provider returned an empty payload")
	ErrSchemaValidation      = errors.New("payload does not satisfy schema")
	ErrUnknownProvider       = errors.New("unknown provider")
	ErrMediaAssembly         = errors.New("media assembly failed")
	ErrSceneGeneration       = errors.New("scene generation failed")
	ErrPipelineCancelled     = errors.New("pipeline cancelled")
)

var kindSentinels = map[Kind]error{
	KindEmptyProviderResponse: ErrEmptyProviderResponse,
	KindSchemaValidation:      ErrSchemaValidation,
	KindUnknownProvider:       ErrUnknownProvider,
	KindMediaAssembly:         ErrMediaAssembly,
	KindSceneGeneration:       ErrSceneGeneration,
	KindPipelineCancelled:     ErrPipelineCancelled,
}

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
	Kind    Kind
	// Field is the JSON pointer of the offending value for schema failures.
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s at %s", msg, e.Field)
	}
	if e.Err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
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
		Kind:    KindInternal,
	}
}

// Is reports whether the target is the sentinel for this error's kind or
// matches the underlying error.
func (e *AppError) Is(target error) bool {
	if s, ok := kindSentinels[e.Kind]; ok && s == target {
		return true
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

// KindOf returns the kind of the first AppError in err's chain.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// FieldPath returns the offending field path of a schema validation error.
func FieldPath(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Field
	}
	return ""
}

// EmptyProviderResponse reports a missing payload. provider may be empty when
// the caller does not know which adapter produced the payload.
func EmptyProviderResponse(provider string) *AppError {
	err := errors.New("no textual payload")
	if provider != "" {
		err = fmt.Errorf("provider %q returned no textual payload", provider)
	}
	return &AppError{
		Err:     err,
		Status:  http.StatusBadGateway,
		Message: "empty provider response",
		Kind:    KindEmptyProviderResponse,
	}
}

// SchemaValidation reports a decode or validation failure at field.
// An empty field denotes the document root.
func SchemaValidation(field string, err error) *AppError {
	if field == "" {
		field = "/"
	}
	return &AppError{
		Err:     err,
		Status:  http.StatusUnprocessableEntity,
		Message: "schema validation failed",
		Kind:    KindSchemaValidation,
		Field:   field,
	}
}

func UnknownProvider(capability, name string) *AppError {
	return &AppError{
		Err:     fmt.Errorf("no %s provider registered as %q", capability, name),
		Status:  http.StatusInternalServerError,
		Message: "unknown provider",
		Kind:    KindUnknownProvider,
	}
}

func MediaAssembly(op string, err error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%s: %w", op, err),
		Status:  http.StatusInternalServerError,
		Message: "media assembly failed",
		Kind:    KindMediaAssembly,
	}
}

func SceneGeneration(scene int, err error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("scene %d: %w", scene, err),
		Status:  http.StatusBadGateway,
		Message: "scene generation failed",
		Kind:    KindSceneGeneration,
	}
}

func PipelineCancelled(err error) *AppError {
	return &AppError{
		Err:     err,
		Status:  499,
		Message: "pipeline cancelled",
		Kind:    KindPipelineCancelled,
	}
}

// WrapStorage wraps an asset storage error with a consistent status and message.
func WrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Err:     err,
		Status:  http.StatusBadGateway,
		Message: StorageErrorMessage,
		Kind:    KindStorage,
	}
}

// WrapProvider wraps a transport or API error returned by a provider SDK.
func WrapProvider(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Err:     fmt.Errorf("%s: %w", provider, err),
		Status:  http.StatusBadGateway,
		Message: ProviderErrorMessage,
		Kind:    KindProvider,
	}
}
