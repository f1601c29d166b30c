package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir 切换到临时目录，避免读到仓库中的配置文件
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, _, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:5000", cfg.Server.Addr())
	assert.Equal(t, DefaultSerialPort(), cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, time.Second, cfg.Serial.ReadTimeout)
	assert.Equal(t, time.Second, cfg.Serial.WriteTimeout)
	assert.Equal(t, 2*time.Second, cfg.Serial.SettleDelay)
	assert.False(t, cfg.Serial.MockMode)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.NoError(t, Validate(cfg))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8088
serial:
  port: /dev/ttyUSB1
  baud_rate: 115200
  settle_delay: 500ms
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, vp, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, vp.ConfigFileUsed())
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "未设置的字段保留默认值")
	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 500*time.Millisecond, cfg.Serial.SettleDelay)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERIAL_CONTROL_SERIAL_PORT", "COM7")
	t.Setenv("SERIAL_CONTROL_SERVER_PORT", "6000")

	cfg, _, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "COM7", cfg.Serial.Port)
	assert.Equal(t, 6000, cfg.Server.Port)
}

func TestInitAndSet(t *testing.T) {
	chdir(t, t.TempDir())

	require.NoError(t, Init(""))
	require.NotNil(t, Get())
	assert.Empty(t, ConfigFile())

	require.NoError(t, Set("serial.port", "/dev/ttyS9"))
	assert.Equal(t, "/dev/ttyS9", Get().Serial.Port)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	base, _, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"端口越界", func(c *Config) { c.Server.Port = 70000 }},
		{"空主机", func(c *Config) { c.Server.Host = "" }},
		{"未知模式", func(c *Config) { c.Server.Mode = "prod" }},
		{"空串口", func(c *Config) { c.Serial.Port = "" }},
		{"波特率为0", func(c *Config) { c.Serial.BaudRate = 0 }},
		{"写超时为0", func(c *Config) { c.Serial.WriteTimeout = 0 }},
		{"负的等待时间", func(c *Config) { c.Serial.SettleDelay = -time.Second }},
		{"未知日志级别", func(c *Config) { c.Log.Level = "verbose" }},
		{"未知日志输出", func(c *Config) { c.Log.Output = "syslog" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.Error(t, Validate(&cfg))
		})
	}

	assert.Error(t, Validate(nil))
}

// replaceFile 原子替换配置文件，避免监听到写了一半的内容
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatchReloadsLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	replaceFile(t, path, "server:\n  port: 8088\nlog:\n  level: info\n")

	require.NoError(t, Init(path))
	assert.Equal(t, path, ConfigFile())

	changes := make(chan *Config, 16)
	Watch(func(c *Config) { changes <- c })

	// 校验失败的修改被忽略
	replaceFile(t, path, "server:\n  port: 0\nlog:\n  level: warn\n")
	assert.Never(t, func() bool { return Get().Server.Port == 0 }, 300*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, 8088, Get().Server.Port)
	assert.Equal(t, "info", Get().Log.Level)
	assert.Empty(t, changes)

	replaceFile(t, path, "server:\n  port: 8088\nlog:\n  level: debug\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			assert.NotEqual(t, 0, c.Server.Port)
			if c.Log.Level != "debug" {
				continue
			}
			assert.Equal(t, 8088, c.Server.Port)
			assert.Equal(t, "debug", Get().Log.Level)
			return
		case <-deadline:
			t.Fatal("修改日志级别后未收到配置变更回调")
		}
	}
}
