package acquisition

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/iwtcode/multiharpAdapter/mhlib"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoDevice     = errors.New("no device available")
	ErrInvalidState = errors.New("invalid controller state")
	ErrPollTimeout  = errors.New("measurement did not complete within max wait")
	ErrClosed       = errors.New("controller closed")
)

// APIError отказ функции MHLib: имя вызова, место в коде, код и расшифровка.
type APIError struct {
	Call      string
	Code      int
	Message   string
	File      string
	Line      int
	DebugInfo string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s at %s:%d returned error %d (%s)", e.Call, e.File, e.Line, e.Code, e.Message)
}

// IsAPIError возвращает APIError из цепочки ошибок, если он там есть.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// call проверяет код возврата функции name. Отрицательный код превращается
// в *APIError с расшифровкой через GetErrorString и местом вызова. Ошибка
// пишется в лог один раз здесь же, контроллер после нее считается
// неисправным. Вызывается с захваченным c.mu.
func (c *Controller) call(name string, rc int) error {
	if rc >= 0 {
		return nil
	}
	return c.fail(name, rc, 2)
}

func (c *Controller) fail(name string, rc int, skip int) *APIError {
	apiErr := &APIError{Call: name, Code: rc, File: "?"}
	if _, file, line, ok := runtime.Caller(skip); ok {
		apiErr.File = filepath.Base(file)
		apiErr.Line = line
	}
	apiErr.Message = c.errorString(rc)

	c.failed = apiErr
	c.metrics.apiError(name)
	c.log.WithFields(logrus.Fields{
		"call": name,
		"code": rc,
		"at":   fmt.Sprintf("%s:%d", apiErr.File, apiErr.Line),
	}).Errorf("API call failed: %s", apiErr.Message)
	return apiErr
}

func (c *Controller) errorString(rc int) string {
	text, erc := c.lib.GetErrorString(rc)
	if erc < 0 || text == "" {
		return mhlib.ErrorText(rc)
	}
	return text
}
