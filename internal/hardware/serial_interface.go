package hardware

import "io"

// SerialPort 串口接口（*serial.Port 实现该接口，测试中可替换）
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// PortOpener 打开串口的函数
type PortOpener func(cfg *SerialConfig) (SerialPort, error)
