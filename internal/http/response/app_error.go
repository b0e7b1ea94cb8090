package response

import "errors"

// AppError 统一错误包装
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装错误
func WrapError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorMapping 哨兵错误到业务码的映射
type ErrorMapping struct {
	Target  error
	Code    int
	Message string
}

// Resolve 按映射顺序匹配错误，AppError 优先，匹配不到时返回 500
func Resolve(err error, mappings ...ErrorMapping) (int, string) {
	if err == nil {
		return CodeOK, "success"
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Message
	}
	for _, m := range mappings {
		if errors.Is(err, m.Target) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			return m.Code, msg
		}
	}
	return CodeInternal, "internal error"
}
