package config

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 SERIAL_CONTROL_SERIAL_PORT
const EnvPrefix = "SERIAL_CONTROL"

// Config 全局配置结构体
type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Serial SerialConfig `mapstructure:"serial" yaml:"serial"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	Mode            string        `mapstructure:"mode" yaml:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SerialConfig 串口配置
type SerialConfig struct {
	Port         string        `mapstructure:"port" yaml:"port"`
	BaudRate     int           `mapstructure:"baud_rate" yaml:"baud_rate"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	SettleDelay  time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"` // 打开后等待设备复位
	MockMode     bool          `mapstructure:"mock_mode" yaml:"mock_mode"`       // 调试模式（使用内存串口）
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string        `mapstructure:"level" yaml:"level"`
	Format string        `mapstructure:"format" yaml:"format"`
	Output string        `mapstructure:"output" yaml:"output"`
	File   LogFileConfig `mapstructure:"file" yaml:"file"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

var (
	cfg *Config
	mu  sync.RWMutex
	v   *viper.Viper
)

// Load 读取配置文件、环境变量和默认值，返回独立的配置实例
func Load(configPath string) (*Config, *viper.Viper, error) {
	vp := viper.New()

	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 未指定路径且找不到配置文件时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return c, vp, nil
}

// Init 初始化全局配置
func Init(configPath string) error {
	c, vp, err := Load(configPath)
	if err != nil {
		return err
	}

	mu.Lock()
	cfg, v = c, vp
	mu.Unlock()

	return nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置，仅监听本机
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")

	// 串口默认配置
	v.SetDefault("serial.port", DefaultSerialPort())
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.read_timeout", "1s")
	v.SetDefault("serial.write_timeout", "1s")
	v.SetDefault("serial.settle_delay", "2s")
	v.SetDefault("serial.mock_mode", false)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "serial-control.log")
	v.SetDefault("log.file.max_size", 20)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.compress", true)
}

// DefaultSerialPort 返回当前平台常见的开发板串口
func DefaultSerialPort() string {
	if runtime.GOOS == "windows" {
		return "COM3"
	}
	return "/dev/ttyACM0"
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Set 动态设置配置值（命令行参数覆盖使用）
func Set(key string, value interface{}) error {
	mu.Lock()
	defer mu.Unlock()

	if v == nil {
		return fmt.Errorf("config not initialized")
	}

	v.Set(key, value)

	newCfg := &Config{}
	if err := v.Unmarshal(newCfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	cfg = newCfg
	return nil
}

// ConfigFile 返回实际使用的配置文件路径，未使用配置文件时为空
func ConfigFile() string {
	mu.RLock()
	defer mu.RUnlock()
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	mu.RLock()
	vp := v
	mu.RUnlock()

	if vp == nil || vp.ConfigFileUsed() == "" {
		return
	}

	vp.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		newCfg := &Config{}
		if err := vp.Unmarshal(newCfg); err != nil {
			mu.Unlock()
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := Validate(newCfg); err != nil {
			mu.Unlock()
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
	})
	vp.WatchConfig()
}
