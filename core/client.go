package core

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lisuiheng/sonic-go/audio"
	"github.com/lisuiheng/sonic-go/metrics"
	"github.com/lisuiheng/sonic-go/modem"
	"github.com/lisuiheng/sonic-go/pkg/interfaces"
	"github.com/lisuiheng/sonic-go/protocols/websocket"
	"github.com/lisuiheng/sonic-go/utils"
)

// ClientOptions inject collaborators; zero values take the defaults.
type ClientOptions struct {
	Metrics      *metrics.Metrics
	NewTransport func(Config) (interfaces.TransportProtocol, error)
	Backoff      utils.ReconnectStrategy
	Clock        func() time.Time
}

// Client drives a Scheduler from a ticker and relays payloads to an optional
// bridge.
type Client struct {
	config    Config
	scheduler *Scheduler
	logger    *slog.Logger
	metrics   *metrics.Metrics

	newTransport func(Config) (interfaces.TransportProtocol, error)
	backoff      utils.ReconnectStrategy
	transport    interfaces.TransportProtocol
	transportMu  sync.RWMutex

	closeChan chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Status 包含客户端状态信息
type Status struct {
	State           audio.State
	BridgeConnected bool
	Engine          modem.Parameters
	EngineActive    bool
}

// bridgeMessage is the JSON envelope exchanged with the relay.
type bridgeMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
	Protocol  *int   `json:"protocol,omitempty"`
	Volume    *int   `json:"volume,omitempty"`
	Message   string `json:"message,omitempty"`
}

// NewClient 创建一个新的客户端
func NewClient(cfg Config, backend audio.Backend, opts ClientOptions, log *slog.Logger) (*Client, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if backend == nil {
		return nil, errors.New("audio backend cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.NewTransport == nil {
		opts.NewTransport = NewProtocol
	}
	if opts.Backoff == nil {
		opts.Backoff = utils.NewExponentialBackoff()
	}

	scheduler := NewScheduler(backend, SchedulerOptions{
		SilenceTimeout:    cfg.Scheduler.SilenceTimeout,
		BacklogFrames:     cfg.Scheduler.BacklogFrames,
		CaptureDeviceName: cfg.Audio.CaptureDeviceName,
		Clock:             opts.Clock,
		Metrics:           opts.Metrics,
	}, log)

	return &Client{
		config:       cfg,
		scheduler:    scheduler,
		logger:       log,
		metrics:      opts.Metrics,
		newTransport: opts.NewTransport,
		backoff:      opts.Backoff,
		closeChan:    make(chan struct{}),
	}, nil
}

func (c *Client) Scheduler() *Scheduler { return c.scheduler }

// Run 启动客户端主循环. It initializes the scheduler, ticks it until ctx is
// done or Close is called, and tears it down on return.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("Starting client main loop")
	defer c.logger.Info("Client main loop stopped")

	if err := c.scheduler.Initialize(c.config.InitParams()); err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer c.scheduler.Teardown()

	if cfg, ok := c.scheduler.EngineConfig(); ok {
		c.logger.Info("Listening for payloads",
			"payload_length", cfg.PayloadLength,
			"mode", cfg.OperatingMode)
	}

	if c.config.Bridge.Enabled {
		c.wg.Add(1)
		go c.bridgeLoop(ctx)
	}

	ticker := time.NewTicker(c.config.Scheduler.TickInterval)
	defer ticker.Stop()

	// 主循环
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping client")
			return nil
		case <-c.closeChan:
			c.logger.Info("Close signal received, stopping client")
			return nil
		case p := <-c.scheduler.Received():
			c.handlePayload(p)
		case <-ticker.C:
			if !c.scheduler.Tick() {
				return ErrNotInitialized
			}
		}
	}
}

// Send queues data with the configured protocol and volume.
func (c *Client) Send(data []byte) error {
	return c.scheduler.Send(TxRequest{
		Data:     data,
		Protocol: modem.ProtocolID(c.config.Modem.Protocol),
		Volume:   c.config.Modem.Volume,
	})
}

// ReadLines sends every non-empty line of r until EOF, ctx is done or the
// client closes.
func (c *Client) ReadLines(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			case <-c.closeChan:
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closeChan:
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			if line == "" {
				continue
			}
			if err := c.Send([]byte(line)); err != nil {
				c.logger.Warn("Failed to queue line", "error", err, "bytes", len(line))
				continue
			}
			c.logger.Info("Queued payload for transmission", "bytes", len(line))
		}
	}
}

// GetStatus 获取当前状态
func (c *Client) GetStatus() Status {
	c.transportMu.RLock()
	connected := c.transport != nil
	c.transportMu.RUnlock()

	cfg, active := c.scheduler.EngineConfig()
	return Status{
		State:           c.scheduler.State(),
		BridgeConnected: connected,
		Engine:          cfg,
		EngineActive:    active,
	}
}

// Close 关闭客户端
func (c *Client) Close() error {
	c.logger.Info("Closing client")
	c.closeOnce.Do(func() { close(c.closeChan) })

	c.transportMu.RLock()
	transport := c.transport
	c.transportMu.RUnlock()
	if transport != nil {
		if err := transport.Close(); err != nil {
			c.logger.Error("Failed to close bridge connection", "error", err)
		}
	}

	c.wg.Wait()
	c.logger.Info("Client closed successfully")
	return nil
}

func (c *Client) handlePayload(p Payload) {
	c.logger.Info("Received",
		"id", p.ID,
		"timestamp", p.Timestamp.Format(time.RFC3339),
		"text", string(p.Data))

	c.transportMu.RLock()
	connected := c.transport != nil
	c.transportMu.RUnlock()
	if !connected {
		return
	}

	if err := c.sendJSON(bridgeMessage{
		Type:      "received",
		ID:        p.ID.String(),
		Timestamp: p.Timestamp.Format(time.RFC3339Nano),
		Payload:   p.Data,
	}); err != nil {
		c.logger.Warn("Failed to forward payload to bridge", "error", err, "id", p.ID)
	}
}

// bridgeLoop keeps the relay connection alive, reconnecting with backoff.
func (c *Client) bridgeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		err := c.connectBridge(ctx)
		c.metrics.RecordBridgeConnect(err)
		if err == nil {
			c.backoff.Reset()
			err = c.serveBridge(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		default:
		}

		delay := c.backoff.NextDelay()
		c.logger.Warn("Bridge disconnected, reconnecting", "error", err, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		}
	}
}

func (c *Client) connectBridge(ctx context.Context) error {
	c.logger.Info("Connecting to bridge", "url", c.config.Bridge.URL)

	transport, err := c.newTransport(c.config)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}
	if err := transport.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to bridge: %w", err)
	}

	c.transportMu.Lock()
	c.transport = transport
	c.transportMu.Unlock()

	cfg, _ := c.scheduler.EngineConfig()
	helloMsg := map[string]interface{}{
		"type":    "hello",
		"version": 1,
		"station": c.config.Station,
		"audio_params": map[string]interface{}{
			"payload_length":  cfg.PayloadLength,
			"sample_rate_inp": cfg.SampleRateInp,
			"sample_rate_out": cfg.SampleRateOut,
			"mode":            cfg.OperatingMode.String(),
		},
	}
	if err := c.sendJSON(helloMsg); err != nil {
		c.dropTransport()
		return fmt.Errorf("failed to send hello message: %w", err)
	}

	c.logger.Info("Connected to bridge successfully")
	return nil
}

func (c *Client) dropTransport() {
	c.transportMu.Lock()
	transport := c.transport
	c.transport = nil
	c.transportMu.Unlock()
	if transport != nil {
		transport.Close()
	}
}

// serveBridge handles inbound messages until the connection ends.
func (c *Client) serveBridge(ctx context.Context) error {
	defer c.dropTransport()

	c.transportMu.RLock()
	msgChan := c.transport.Receive()
	c.transportMu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closeChan:
			return nil
		case msg, ok := <-msgChan:
			if !ok {
				return ErrConnectionLost
			}
			var err error
			switch msg.Type {
			case interfaces.MsgText:
				err = c.handleTextMessage(msg.Payload)
			case interfaces.MsgBinary:
				err = c.Send(msg.Payload)
			}
			if err != nil {
				c.logger.Error("Failed to handle bridge message", "error", err)
				c.replyError(err)
			}
		}
	}
}

func (c *Client) handleTextMessage(data []byte) error {
	if len(data) == 0 {
		c.logger.Debug("Empty message received")
		return nil
	}

	var msg bridgeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Error("JSON unmarshal failed", "error", err, "raw_data", string(data))
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	switch msg.Type {
	case "send":
		req := TxRequest{
			Data:     msg.Payload,
			Protocol: modem.ProtocolID(c.config.Modem.Protocol),
			Volume:   c.config.Modem.Volume,
		}
		if msg.Protocol != nil {
			req.Protocol = modem.ProtocolID(*msg.Protocol)
		}
		if msg.Volume != nil {
			req.Volume = *msg.Volume
		}
		if err := c.scheduler.Send(req); err != nil {
			return err
		}
		c.logger.Info("Queued bridge payload for transmission", "bytes", len(req.Data))
		return nil
	case "hello":
		c.logger.Info("Received hello response from bridge")
		return nil
	default:
		c.logger.Warn("Unknown message type received", "type", msg.Type)
		return nil
	}
}

func (c *Client) replyError(cause error) {
	if err := c.sendJSON(bridgeMessage{Type: "error", Message: cause.Error()}); err != nil {
		c.logger.Debug("Failed to send error reply", "error", err)
	}
}

// 发送 JSON 消息
func (c *Client) sendJSON(data interface{}) error {
	c.transportMu.RLock()
	transport := c.transport
	c.transportMu.RUnlock()
	if transport == nil {
		return interfaces.ErrNotConnected
	}

	msg, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	c.logger.Debug("Sending JSON message", "json", string(msg))
	return transport.Send(msg, interfaces.MsgText)
}

// NewProtocol 根据配置创建对应的协议实例
func NewProtocol(config Config) (interfaces.TransportProtocol, error) {
	var wsConfig websocket.Config
	wsConfig.Server.URL = config.Bridge.URL
	wsConfig.Server.ProtocolVersion = 1
	wsConfig.Auth.AccessToken = config.Bridge.AccessToken
	wsConfig.Station.ID = config.Station

	p, err := websocket.NewWebSocketProtocol(wsConfig)
	if err != nil {
		return nil, err
	}
	return p, nil
}
