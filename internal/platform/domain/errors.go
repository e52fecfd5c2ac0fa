package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a DomainError for transport mapping.
type ErrorCode string

const (
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodePetNotFound  ErrorCode = "PET_NOT_FOUND"
	CodeConflict     ErrorCode = "CONFLICT"
	CodeDuplicate    ErrorCode = "DUPLICATE_KEY"
	CodeValidation   ErrorCode = "VALIDATION_ERROR"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeInternal     ErrorCode = "INTERNAL"
)

// DomainError is an error carrying a classification code and a client-safe message.
type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewNotFoundError reports that an entity with the given id does not exist.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id)}
}

// NewPetNotFoundError reports that the pet registry has no pet with the given code.
func NewPetNotFoundError(petCode string) *DomainError {
	return &DomainError{Code: CodePetNotFound, Message: fmt.Sprintf("pet not found: %s", petCode)}
}

// NewDuplicateError reports a unique key collision.
func NewDuplicateError(entity, key string) *DomainError {
	return &DomainError{Code: CodeDuplicate, Message: fmt.Sprintf("%s already exists: %s", entity, key)}
}

func NewConflictError(msg string) *DomainError {
	return &DomainError{Code: CodeConflict, Message: msg}
}

func NewValidationError(msg string) *DomainError {
	return &DomainError{Code: CodeValidation, Message: msg}
}

func NewForbiddenError(msg string) *DomainError {
	return &DomainError{Code: CodeForbidden, Message: msg}
}

func NewUnauthorizedError(msg string) *DomainError {
	return &DomainError{Code: CodeUnauthorized, Message: msg}
}

// CodeOf returns the code of the first DomainError in err's chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

func IsNotFound(err error) bool    { return CodeOf(err) == CodeNotFound }
func IsPetNotFound(err error) bool { return CodeOf(err) == CodePetNotFound }
func IsDuplicate(err error) bool   { return CodeOf(err) == CodeDuplicate }
func IsConflict(err error) bool    { return CodeOf(err) == CodeConflict }
func IsValidation(err error) bool  { return CodeOf(err) == CodeValidation }
