package service

import (
	"errors"

	"github.com/bitfantasy/printops/internal/production/repository"
)

// 错误定义
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyAssigned   = errors.New("order already assigned to a print session")
	ErrEmptySelection    = errors.New("no orders selected")
	ErrInvalidSettings   = errors.New("invalid alert settings")
	ErrMissingField      = errors.New("missing required field")
)

// 业务错误码，与响应信封的 code 一致
const (
	CodeBadRequest        = 40000
	CodeInvalidAmount     = 40001
	CodeEmptySelection    = 40002
	CodeInvalidStatus     = 40003
	CodeInvalidSettings   = 40004
	CodeNotFound          = 40400
	CodeInvalidTransition = 40901
	CodeInsufficientStock = 40902
	CodeAlreadyAssigned   = 40903
	CodeInternal          = 50000
)

// ErrorCode 将错误映射为响应码
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidPriority):
		return CodeInvalidAmount
	case errors.Is(err, ErrInvalidStatus):
		return CodeInvalidStatus
	case errors.Is(err, ErrInsufficientStock):
		return CodeInsufficientStock
	case errors.Is(err, ErrAlreadyAssigned):
		return CodeAlreadyAssigned
	case errors.Is(err, ErrEmptySelection):
		return CodeEmptySelection
	case errors.Is(err, ErrInvalidSettings):
		return CodeInvalidSettings
	case errors.Is(err, ErrMissingField):
		return CodeBadRequest
	}
	return CodeInternal
}

// notFound 将存储层的 ErrNotFound 转为业务错误，其他错误原样返回
func notFound(err error, what, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Kind: what, ID: id}
	}
	return err
}

// NotFoundError 携带实体类型和ID
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return e.Kind + " " + e.ID + " not found"
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
