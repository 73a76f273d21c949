package utils

import "time"

type ReconnectStrategy interface {
	NextDelay() time.Duration
	Reset()
}

type ExponentialBackoff struct {
	initialDelay time.Duration
	currentDelay time.Duration
	maxDelay     time.Duration
}

func NewExponentialBackoff() *ExponentialBackoff {
	return NewExponentialBackoffRange(1*time.Second, 30*time.Second)
}

// NewExponentialBackoffRange 以initial开始, 每次翻倍, 不超过max
func NewExponentialBackoffRange(initial, max time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		initialDelay: initial,
		currentDelay: initial,
		maxDelay:     max,
	}
}

func (e *ExponentialBackoff) NextDelay() time.Duration {
	delay := e.currentDelay
	e.currentDelay *= 2
	if e.currentDelay > e.maxDelay {
		e.currentDelay = e.maxDelay
	}
	return delay
}

// Reset 连接成功后恢复初始延迟
func (e *ExponentialBackoff) Reset() {
	e.currentDelay = e.initialDelay
}
