package hardware

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/wfunc/serial-control/internal/logger"
	"go.uber.org/zap"
)

// MockPort 内存串口，调试模式和测试中代替真实设备
type MockPort struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool

	writeErr error

	// Block 不为空时写入阻塞到通道关闭
	Block chan struct{}
}

// NewMockPort 创建内存串口
func NewMockPort() *MockPort {
	return &MockPort{}
}

// MockOpener 返回总是打开同一个 MockPort 的 PortOpener
func MockOpener(port *MockPort) PortOpener {
	return func(cfg *SerialConfig) (SerialPort, error) {
		logger.WithModule("serial").Warn("使用模拟串口", zap.String("port", cfg.Port))
		return port, nil
	}
}

func (m *MockPort) Write(p []byte) (int, error) {
	if m.Block != nil {
		<-m.Block
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, errors.New("port closed")
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}

	m.writes = append(m.writes, bytes.Clone(p))
	return len(p), nil
}

// SetWriteErr 设置后续写入返回的错误，nil 表示恢复正常
func (m *MockPort) SetWriteErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Read 设备回显不在处理范围内，始终返回EOF
func (m *MockPort) Read(p []byte) (int, error) {
	return 0, io.EOF
}

func (m *MockPort) Flush() error {
	return nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Writes 返回已写入数据的副本，每次 Write 调用一条
func (m *MockPort) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.writes))
	for i, w := range m.writes {
		out[i] = string(w)
	}
	return out
}

// Closed 是否已关闭
func (m *MockPort) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
