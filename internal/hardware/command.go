package hardware

import (
	apperrors "github.com/wfunc/serial-control/internal/errors"
)

// Command 发送给设备的控制命令
type Command string

const (
	CmdOn   Command = "on"
	CmdHalf Command = "half"
	CmdOff  Command = "off"
)

// commandTerminator 每条命令以换行结束，设备端按行读取
const commandTerminator = '\n'

// Commands 返回全部合法命令
func Commands() []Command {
	return []Command{CmdOn, CmdHalf, CmdOff}
}

// ParseCommand 将URL中的模式解析为命令，大小写敏感
func ParseCommand(mode string) (Command, error) {
	switch Command(mode) {
	case CmdOn, CmdHalf, CmdOff:
		return Command(mode), nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidCommand, "unknown mode %q", mode)
	}
}

// Mode 返回命令对应的模式名
func (c Command) Mode() string {
	return string(c)
}

// Bytes 返回写入串口的字节序列
func (c Command) Bytes() []byte {
	b := make([]byte, 0, len(c)+1)
	b = append(b, string(c)...)
	return append(b, commandTerminator)
}

func (c Command) String() string {
	return string(c)
}
