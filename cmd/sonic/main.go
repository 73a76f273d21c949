package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lisuiheng/sonic-go/audio"
	"github.com/lisuiheng/sonic-go/core"
	"github.com/lisuiheng/sonic-go/logger"
	"github.com/lisuiheng/sonic-go/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	// 定义命令行参数
	fs := pflag.NewFlagSet("sonic", pflag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default searches ./config.yaml, /etc/sonic/config.yaml)")
	fs.IntP("capture", "c", audio.DefaultDevice, "Capture device index")
	fs.IntP("playback", "p", audio.DefaultDevice, "Playback device index")
	fs.String("capture-name", "", "Capture device name, used when no index is given")
	fs.String("backend", "malgo", fmt.Sprintf("Audio backend %v", core.Backends))
	fs.Int("offset", 0, "Sample rate offset in Hz added to 48000")
	fs.IntP("payload-length", "l", 16, "Fixed payload length, -1 for variable length")
	fs.Bool("dss", false, "Enable direct sequence spreading")
	fs.Int("protocol", 1, "Transmission protocol id")
	fs.Int("volume", 50, "Transmission volume (0, 100]")
	fs.Duration("tick", 10*time.Millisecond, "Scheduler tick interval")
	fs.String("bridge", "", "WebSocket relay URL")
	fs.String("metrics", "", "Serve Prometheus metrics on this address")
	fs.String("log-level", "info", "Log level debug/info/warn/error")
	fs.String("log-format", "text", "Log format text/json/console")
	debug := fs.Bool("debug", false, "Enable debug logging to stdout")
	stdin := fs.Bool("stdin", false, "Transmit every line read from stdin")
	listDevices := fs.Bool("list-devices", false, "List audio devices and exit")
	_ = fs.Parse(os.Args[1:])

	// 加载配置
	v := viper.New()
	cfg, err := core.LoadConfig(v, *configPath, fs)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if fs.Changed("bridge") {
		cfg.Bridge.Enabled = true
	}

	// 初始化日志
	if err := initLogger(cfg, *debug); err != nil {
		logger.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer logger.Close()

	backend, err := core.NewBackend(cfg.Audio.Backend, logger.Logger())
	if err != nil {
		logger.Error("Failed to create audio backend", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	if *listDevices {
		printDevices(backend)
		return
	}

	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.NewMetrics(reg)
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metricsMux(reg)}
		go func() {
			logger.Info("Serving metrics", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	// 创建应用客户端
	client, err := core.NewClient(cfg, backend, core.ClientOptions{Metrics: m}, logger.Logger())
	if err != nil {
		logger.Error("Failed to create client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("Failed to close client", "error", err)
		}
	}()

	// 设置信号处理
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 启动主服务
	go func() {
		logger.Info("Starting sonic station", "backend", backend.Name())
		if err := client.Run(ctx); err != nil {
			logger.Error("Station runtime error", "error", err)
		}
		cancel()
	}()

	if *stdin {
		go func() {
			if err := client.ReadLines(ctx, os.Stdin); err != nil {
				logger.Error("Failed to read stdin", "error", err)
			}
		}()
	}

	// 等待终止信号
	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Station shutdown completed")
}

// initLogger 初始化日志系统
func initLogger(cfg core.Config, debug bool) error {
	logCfg := logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Outputs: cfg.Logging.Outputs,
	}

	// 调试模式覆盖配置
	if debug {
		logCfg.Level = "debug"
		logCfg.Outputs = []string{"stdout"}
	}

	if err := logger.Init(logCfg); err != nil {
		return err
	}
	logger.Debug("Debug mode enabled")
	return nil
}

func metricsMux(g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	return mux
}

func printDevices(backend audio.Backend) {
	for _, dir := range []audio.Direction{audio.Playback, audio.Capture} {
		names, err := backend.Devices(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s devices: %v\n", dir, err)
			continue
		}
		fmt.Printf("%s devices:\n", dir)
		for i, name := range names {
			fmt.Printf("  %d: %s\n", i, name)
		}
	}
}
