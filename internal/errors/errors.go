package errors

import (
	"errors"
	"fmt"
)

// Функции стандартной библиотеки, чтобы не импортировать оба пакета
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// Code код ошибки конвейера
type Code string

const (
	CodeDecode               Code = "decode_error"
	CodeReferenceUnavailable Code = "reference_unavailable"
	CodeShapeMismatch        Code = "shape_mismatch"
	CodeDegenerateVector     Code = "degenerate_vector"
	CodeQueueFull            Code = "queue_full"
	CodeStopped              Code = "detector_stopped"
)

var messages = map[Code]string{
	CodeDecode:               "malformed burst payload",
	CodeReferenceUnavailable: "reference templates unavailable",
	CodeShapeMismatch:        "feature matrix shape does not match reference",
	CodeDegenerateVector:     "degenerate feature vector",
	CodeQueueFull:            "detector queue is full",
	CodeStopped:              "detector is stopped",
}

// Сигнальные значения для errors.Is: сравнение идет по коду
var (
	ErrDecode               = &Error{Code: CodeDecode}
	ErrReferenceUnavailable = &Error{Code: CodeReferenceUnavailable}
	ErrShapeMismatch        = &Error{Code: CodeShapeMismatch}
	ErrDegenerateVector     = &Error{Code: CodeDegenerateVector}
	ErrQueueFull            = &Error{Code: CodeQueueFull}
	ErrStopped              = &Error{Code: CodeStopped}
)

// Error типизированная ошибка с кодом
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = messages[e.Code]
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New создает ошибку с кодом и сообщением
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap оборачивает причину в ошибку с кодом
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf возвращает код первой типизированной ошибки в цепочке
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// MessageOf возвращает описание кода без деталей
func MessageOf(code Code) string {
	return messages[code]
}
