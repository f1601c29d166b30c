package hardware

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
	apperrors "github.com/wfunc/serial-control/internal/errors"
	"github.com/wfunc/serial-control/internal/logger"
	"go.uber.org/zap"
)

// SerialConfig 串口配置
type SerialConfig struct {
	Port         string        `yaml:"port"`
	BaudRate     int           `yaml:"baud_rate"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
}

// LinkStatus 串口链路状态快照
type LinkStatus struct {
	Port            string     `json:"port"`
	BaudRate        int        `json:"baud_rate"`
	Connected       bool       `json:"connected"`
	WriteCount      uint64     `json:"write_count"`
	ErrorCount      uint64     `json:"error_count"`
	LastCommand     string     `json:"last_command,omitempty"`
	LastCommandTime *time.Time `json:"last_command_time,omitempty"`
}

// Link 独占的串口链路，启动时打开一次，进程退出前不重连
type Link struct {
	config *SerialConfig
	opener PortOpener
	port   SerialPort
	logger *zap.Logger

	// guard 是容量为1的信号量，保证同一时刻只有一次写入，获取时可超时
	guard chan struct{}

	mu     sync.RWMutex
	status LinkStatus
	closed bool
}

// Option Link可选项
type Option func(*Link)

// WithOpener 替换打开串口的方式
func WithOpener(opener PortOpener) Option {
	return func(l *Link) {
		if opener != nil {
			l.opener = opener
		}
	}
}

// WithLogger 指定日志器
func WithLogger(log *zap.Logger) Option {
	return func(l *Link) {
		if log != nil {
			l.logger = log
		}
	}
}

// openSerialPort 使用 tarm/serial 打开真实串口
func openSerialPort(cfg *SerialConfig) (SerialPort, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Open 打开串口并等待设备就绪。失败时返回 ErrSerialPortOpen，由调用方决定是否退出进程
func Open(ctx context.Context, cfg *SerialConfig, opts ...Option) (*Link, error) {
	l := &Link{
		config: cfg,
		opener: openSerialPort,
		logger: logger.WithModule("serial"),
		guard:  make(chan struct{}, 1),
		status: LinkStatus{
			Port:     cfg.Port,
			BaudRate: cfg.BaudRate,
		},
	}
	for _, opt := range opts {
		opt(l)
	}

	port, err := l.opener(cfg)
	if err != nil {
		l.logger.Error("打开串口失败",
			zap.String("port", cfg.Port),
			zap.Int("baud_rate", cfg.BaudRate),
			zap.Error(err))
		return nil, apperrors.Wrapf(err, apperrors.ErrSerialPortOpen, "port=%s", cfg.Port)
	}

	// 多数开发板在串口打开时会复位，等待其启动完成
	if cfg.SettleDelay > 0 {
		timer := time.NewTimer(cfg.SettleDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			_ = port.Close()
			return nil, apperrors.Wrapf(ctx.Err(), apperrors.ErrCanceled, "port=%s", cfg.Port)
		}
	}

	// 丢弃复位期间设备输出的数据
	if err := port.Flush(); err != nil {
		l.logger.Debug("清空串口缓冲区失败", zap.Error(err))
	}

	l.port = port
	l.status.Connected = true

	l.logger.Info("串口连接成功",
		zap.String("port", cfg.Port),
		zap.Int("baud_rate", cfg.BaudRate))

	return l, nil
}

// Send 发送一条命令
func (l *Link) Send(ctx context.Context, cmd Command) error {
	err := l.Write(ctx, cmd.Bytes())
	logger.LogSerialCommand(l.config.Port, cmd.String(), err)

	if err == nil {
		now := time.Now()
		l.mu.Lock()
		l.status.LastCommand = cmd.String()
		l.status.LastCommandTime = &now
		l.mu.Unlock()
	}
	return err
}

// Write 写入原始字节。写入在 WriteTimeout 内未完成时返回 ErrSerialTimeout，
// 此时互斥保持到底层写入返回为止，后续写入不会与其交错
func (l *Link) Write(ctx context.Context, data []byte) error {
	l.mu.RLock()
	closed := l.closed
	l.mu.RUnlock()
	if closed {
		return apperrors.New(apperrors.ErrDeviceOffline, "serial link closed")
	}

	var timeout <-chan time.Time
	if l.config.WriteTimeout > 0 {
		timer := time.NewTimer(l.config.WriteTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case l.guard <- struct{}{}:
	case <-timeout:
		l.recordFailure()
		return apperrors.Newf(apperrors.ErrSerialTimeout, "port busy for %v", l.config.WriteTimeout)
	case <-ctx.Done():
		l.recordFailure()
		return apperrors.Wrap(ctx.Err(), apperrors.ErrCanceled)
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-l.guard }()
		n, err := l.port.Write(data)
		if err == nil && n < len(data) {
			err = io.ErrShortWrite
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			l.recordFailure()
			return apperrors.Wrap(err, apperrors.ErrSerialPortWrite)
		}
		l.mu.Lock()
		l.status.WriteCount++
		l.mu.Unlock()
		return nil
	case <-timeout:
		l.recordFailure()
		return apperrors.Newf(apperrors.ErrSerialTimeout, "write not completed within %v", l.config.WriteTimeout)
	case <-ctx.Done():
		l.recordFailure()
		return apperrors.Wrap(ctx.Err(), apperrors.ErrCanceled)
	}
}

func (l *Link) recordFailure() {
	l.mu.Lock()
	l.status.ErrorCount++
	l.mu.Unlock()
}

// Status 返回链路状态副本
func (l *Link) Status() *LinkStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()

	status := l.status
	if l.status.LastCommandTime != nil {
		t := *l.status.LastCommandTime
		status.LastCommandTime = &t
	}
	return &status
}

// Port 返回设备路径
func (l *Link) Port() string {
	return l.config.Port
}

// Close 关闭串口，仅在进程退出时调用
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.status.Connected = false

	if err := l.port.Close(); err != nil {
		l.logger.Error("关闭串口失败", zap.Error(err))
		return err
	}

	l.logger.Info("串口已断开", zap.String("port", l.config.Port))
	return nil
}
