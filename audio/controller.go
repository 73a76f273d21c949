// audio/controller.go
package audio

import "sync"

// State 半双工状态
type State int

const (
	StateIdle State = iota
	StateReceiving
	StateTransmitting
)

func (s State) String() string {
	switch s {
	case StateReceiving:
		return "receiving"
	case StateTransmitting:
		return "transmitting"
	default:
		return "idle"
	}
}

// controller 实现半双工控制逻辑: 发送和接收互斥
type controller struct {
	mu    sync.Mutex
	state State
}

// NewController 创建新的音频控制器实例
func NewController() Controller {
	return &controller{}
}

// StartSending switches to transmitting. It fails while receiving; the caller
// has to stop receiving first.
func (c *controller) StartSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateReceiving {
		return false
	}
	c.state = StateTransmitting
	return true
}

func (c *controller) StopSending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateTransmitting {
		c.state = StateIdle
	}
}

func (c *controller) StartReceiving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateTransmitting {
		return false
	}
	c.state = StateReceiving
	return true
}

func (c *controller) StopReceiving() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateReceiving {
		c.state = StateIdle
	}
}

func (c *controller) IsSending() bool {
	return c.State() == StateTransmitting
}

func (c *controller) IsReceiving() bool {
	return c.State() == StateReceiving
}

func (c *controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
