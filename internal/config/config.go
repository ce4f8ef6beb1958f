package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	ad4826 "github.com/hootrhino/goad4826"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "AD4826_CONFIG"

// SerialConfig serial link settings
type SerialConfig struct {
	Port     string        `mapstructure:"port"`
	BaudRate int           `mapstructure:"baudRate"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Driver   string        `mapstructure:"driver"`
}

// DeviceConfig instrument addressing
type DeviceConfig struct {
	Unit       string `mapstructure:"unit"`
	Channel    string `mapstructure:"channel"`
	DecodeMode string `mapstructure:"decodeMode"`
}

// LumberjackConfig rolling log file settings
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig log level and outputs
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus endpoint used by the poll command
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
	Path   string `mapstructure:"path"`
}

// PollConfig weight polling
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Config top-level configuration
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Device  DeviceConfig  `mapstructure:"device"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Poll    PollConfig    `mapstructure:"poll"`
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"port":         "serial.port",
	"baud":         "serial.baudRate",
	"timeout":      "serial.timeout",
	"driver":       "serial.driver",
	"unit":         "device.unit",
	"channel":      "device.channel",
	"decode-mode":  "device.decodeMode",
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"log-file":     "logging.file.filename",
	"metrics":      "metrics.enable",
	"metrics-addr": "metrics.addr",
	"interval":     "poll.interval",
}

// RegisterFlags adds the flags understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (YAML/TOML/JSON)")
	fs.String("port", "", "serial port, e.g. COM3 or /dev/ttyUSB0")
	fs.Int("baud", 0, "baud rate")
	fs.Duration("timeout", 0, "read timeout per exchange")
	fs.String("driver", "", "serial driver: goserial or bugst")
	fs.String("unit", "", "unit number (2 characters)")
	fs.String("channel", "", "channel number (2 characters)")
	fs.String("decode-mode", "", "non-ASCII handling: drop or replace")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "json or console")
	fs.String("log-file", "", "rolling log file, empty for none")
	fs.Bool("metrics", false, "serve metrics and health endpoints while polling")
	fs.String("metrics-addr", "", "metrics listen address")
	fs.Duration("interval", 0, "poll interval")
}

// Load reads configuration from file, AD4826_* environment variables and the
// flags in fs (which may be nil). Precedence: flags > env > file > defaults.
// If path is empty, AD4826_CONFIG and then ./ad4826.yaml are tried.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path == "" && fs != nil {
		path, _ = fs.GetString("config")
	}
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("ad4826")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("AD4826")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := ad4826.DefaultSerialConfig()
	v.SetDefault("serial.port", def.Address)
	v.SetDefault("serial.baudRate", def.BaudRate)
	v.SetDefault("serial.timeout", def.Timeout)
	v.SetDefault("serial.driver", def.Driver)

	v.SetDefault("device.unit", "00")
	v.SetDefault("device.channel", "00")
	v.SetDefault("device.decodeMode", "drop")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 5)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", ":9108")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("poll.interval", "1s")
}

// Validate checks the fields the CLI cannot run without.
func (c *Config) Validate() error {
	if _, err := ad4826.ParseCode(c.Device.Unit); err != nil {
		return fmt.Errorf("device.unit: %w", err)
	}
	if _, err := ad4826.ParseCode(c.Device.Channel); err != nil {
		return fmt.Errorf("device.channel: %w", err)
	}
	if _, err := c.DecodeMode(); err != nil {
		return err
	}
	if c.Metrics.Enable && c.Metrics.Addr == "" {
		return errors.New("metrics.addr: required when metrics.enable is set")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baudRate: must be positive, got %d", c.Serial.BaudRate)
	}
	return nil
}

// SerialConfig converts the serial section for ad4826.OpenSerialPort.
func (c *Config) SerialConfig() ad4826.SerialConfig {
	return ad4826.SerialConfig{
		Address:  c.Serial.Port,
		BaudRate: c.Serial.BaudRate,
		Timeout:  c.Serial.Timeout,
		Driver:   c.Serial.Driver,
	}
}

// Address returns the validated unit and channel codes.
func (c *Config) Address() (unit, channel ad4826.Code, err error) {
	if unit, err = ad4826.ParseCode(c.Device.Unit); err != nil {
		return
	}
	channel, err = ad4826.ParseCode(c.Device.Channel)
	return
}

// DecodeMode parses device.decodeMode.
func (c *Config) DecodeMode() (ad4826.DecodeMode, error) {
	switch strings.ToLower(c.Device.DecodeMode) {
	case "", "drop":
		return ad4826.DecodeDrop, nil
	case "replace":
		return ad4826.DecodeReplace, nil
	default:
		return 0, fmt.Errorf("device.decodeMode: unknown mode %q", c.Device.DecodeMode)
	}
}
