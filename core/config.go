package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lisuiheng/sonic-go/modem"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config 是客户端配置结构, 对应YAML文件
type Config struct {
	Station string `mapstructure:"station"`

	Audio struct {
		Backend           string `mapstructure:"backend"`
		PlaybackDevice    int    `mapstructure:"playback_device"`
		CaptureDevice     int    `mapstructure:"capture_device"`
		CaptureDeviceName string `mapstructure:"capture_device_name"`
		SampleRateOffset  int    `mapstructure:"sample_rate_offset"`
	} `mapstructure:"audio"`

	Modem struct {
		PayloadLength int  `mapstructure:"payload_length"`
		UseDSS        bool `mapstructure:"use_dss"`
		Protocol      int  `mapstructure:"protocol"`
		Volume        int  `mapstructure:"volume"`
	} `mapstructure:"modem"`

	Scheduler struct {
		TickInterval   time.Duration `mapstructure:"tick_interval"`
		SilenceTimeout time.Duration `mapstructure:"silence_timeout"`
		BacklogFrames  int           `mapstructure:"backlog_frames"`
	} `mapstructure:"scheduler"`

	Bridge struct {
		Enabled     bool   `mapstructure:"enabled"`
		URL         string `mapstructure:"url"`
		AccessToken string `mapstructure:"access_token"`
	} `mapstructure:"bridge"`

	Metrics struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"metrics"`

	Logging struct {
		Level   string   `mapstructure:"level"`
		Format  string   `mapstructure:"format"`
		Outputs []string `mapstructure:"outputs"`
	} `mapstructure:"logging"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"capture":        "audio.capture_device",
	"playback":       "audio.playback_device",
	"capture-name":   "audio.capture_device_name",
	"backend":        "audio.backend",
	"offset":         "audio.sample_rate_offset",
	"payload-length": "modem.payload_length",
	"dss":            "modem.use_dss",
	"protocol":       "modem.protocol",
	"volume":         "modem.volume",
	"tick":           "scheduler.tick_interval",
	"bridge":         "bridge.url",
	"metrics":        "metrics.listen",
	"log-level":      "logging.level",
	"log-format":     "logging.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("station", "sonic")
	v.SetDefault("audio.backend", "malgo")
	v.SetDefault("audio.playback_device", -1)
	v.SetDefault("audio.capture_device", -1)
	v.SetDefault("audio.sample_rate_offset", 0)
	v.SetDefault("modem.payload_length", 16)
	v.SetDefault("modem.use_dss", false)
	v.SetDefault("modem.protocol", int(modem.DefaultProtocol))
	v.SetDefault("modem.volume", modem.DefaultVolume)
	v.SetDefault("scheduler.tick_interval", "10ms")
	v.SetDefault("scheduler.silence_timeout", DefaultSilenceTimeout.String())
	v.SetDefault("scheduler.backlog_frames", DefaultBacklogFrames)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputs", []string{"stdout"})
}

// LoadConfig reads the configuration file (searched in ., ./config and
// /etc/sonic when path is empty), SONIC_ environment variables and the
// changed flags of fs, in increasing priority. A missing file is not an
// error unless path names it.
func LoadConfig(v *viper.Viper, path string, fs *pflag.FlagSet) (Config, error) {
	v.SetConfigType("yaml")
	if path != "" {
		// 使用命令行指定的路径
		v.SetConfigFile(path)
	} else {
		// 默认多路径搜索
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sonic")
	}

	setDefaults(v)
	v.SetEnvPrefix("SONIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Modem.PayloadLength > modem.MaxLengthFixed {
		return fmt.Errorf("%w: payload length %d, must be at most %d",
			ErrConfiguration, c.Modem.PayloadLength, modem.MaxLengthFixed)
	}
	if c.Modem.Volume <= 0 || c.Modem.Volume > 100 {
		return fmt.Errorf("%w: volume %d not in (0, 100]", ErrConfiguration, c.Modem.Volume)
	}
	if _, err := modem.ProtocolByID(modem.ProtocolID(c.Modem.Protocol)); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", ErrConfiguration)
	}
	if c.Bridge.Enabled && c.Bridge.URL == "" {
		return fmt.Errorf("%w: bridge enabled without url", ErrConfiguration)
	}
	return nil
}

// InitParams derives the scheduler parameters from the configuration.
func (c Config) InitParams() InitParams {
	return InitParams{
		PlaybackIndex:    c.Audio.PlaybackDevice,
		CaptureIndex:     c.Audio.CaptureDevice,
		PayloadLength:    c.Modem.PayloadLength,
		SampleRateOffset: c.Audio.SampleRateOffset,
		UseDSS:           c.Modem.UseDSS,
	}
}
