package core

import "errors"

var (
	// ErrConfiguration 设备格式不被硬件支持, 或引擎参数无效
	ErrConfiguration       = errors.New("audio configuration error")
	ErrDecodeFailure       = errors.New("failed to decode input data")
	ErrOverrun             = errors.New("capture backlog overrun")
	ErrNotInitialized      = errors.New("scheduler not initialized")
	ErrAlreadyInitialized  = errors.New("scheduler already initialized")
	ErrAlreadyOpen         = errors.New("device already open")
	ErrNoPlayback          = errors.New("no playback device")
	ErrPayloadTooLong      = errors.New("payload too long")
	ErrEmptyPayload        = errors.New("empty payload")
	ErrTxQueueFull         = errors.New("transmit queue full")
	ErrUnsupportedBackend  = errors.New("unsupported audio backend")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrConnectionLost      = errors.New("connection lost")
	// ...其他错误定义
)
