package grid

import (
	"errors"
	"fmt"
	"time"
)

// ErrRetryExhausted 表示有限次重试后仍未得到确认。
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// sleep 可注入，测试中替换以避免真实等待。
var sleep = time.Sleep

// Retry runs fn up to attempts times with a fixed delay between tries.
// fn reports done=true when the condition is confirmed; its error is then
// returned as-is. If every attempt reports done=false the last error (if
// any) is wrapped in ErrRetryExhausted. This is the single bounded-retry
// primitive shared by cancel confirmation, order-status polling and
// pause-flag polling.
func Retry(attempts int, delay time.Duration, fn func() (bool, error)) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		done, err := fn()
		if done {
			return err
		}
		lastErr = err
		if i < attempts-1 {
			sleep(delay)
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w: last error: %v", ErrRetryExhausted, lastErr)
	}
	return ErrRetryExhausted
}
