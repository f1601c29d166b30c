package config

import (
	"fmt"
)

var (
	serverModes = map[string]bool{"debug": true, "release": true, "test": true}
	logLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	logOutputs  = map[string]bool{"stdout": true, "file": true, "both": true}
)

// Validate 校验配置，不修改配置内容
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	s := cfg.Server
	if s.Host == "" {
		return fmt.Errorf("server.host must not be empty")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server.port %d out of range 1-65535", s.Port)
	}
	if !serverModes[s.Mode] {
		return fmt.Errorf("server.mode %q must be one of debug, release, test", s.Mode)
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	p := cfg.Serial
	if p.Port == "" {
		return fmt.Errorf("serial.port must not be empty")
	}
	if p.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate %d must be positive", p.BaudRate)
	}
	if p.ReadTimeout < 0 {
		return fmt.Errorf("serial.read_timeout must not be negative")
	}
	// 写超时为0时写操作可能无限阻塞
	if p.WriteTimeout <= 0 {
		return fmt.Errorf("serial.write_timeout must be positive")
	}
	if p.SettleDelay < 0 {
		return fmt.Errorf("serial.settle_delay must not be negative")
	}

	l := cfg.Log
	if !logLevels[l.Level] {
		return fmt.Errorf("log.level %q is not supported", l.Level)
	}
	if !logOutputs[l.Output] {
		return fmt.Errorf("log.output %q must be one of stdout, file, both", l.Output)
	}

	return nil
}
