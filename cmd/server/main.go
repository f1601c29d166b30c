package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/serial-control/internal/api"
	"github.com/wfunc/serial-control/internal/config"
	"github.com/wfunc/serial-control/internal/errors"
	"github.com/wfunc/serial-control/internal/hardware"
	"github.com/wfunc/serial-control/internal/logger"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(exitCode(rootCmd.Execute(), os.Stderr))
}

// reportedError 已在终端输出过提示的错误
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// reported 标记错误已输出，main 不再重复打印
func reported(err error) error {
	if err == nil {
		return nil
	}
	return &reportedError{err: err}
}

// exitCode 输出尚未提示的错误并返回退出码，启动阶段的严重错误返回2
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}

	var r *reportedError
	if !stderrors.As(err, &r) {
		fmt.Fprintf(w, "错误: %v\n", err)
	}

	if errors.IsCritical(err) {
		return 2
	}
	return 1
}

// Server 服务器实例
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	link       *hardware.Link
	httpServer *http.Server
	errCh      chan error
}

// NewServer 创建服务器实例，串口链路由调用方打开后注入
func NewServer(cfg *config.Config, link *hardware.Link) *Server {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := api.NewRouter(link, logger.WithModule("api"))

	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		link:   link,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr(),
			Handler:      router.Handler(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		errCh: make(chan error, 1),
	}
}

// Start 启动HTTP服务
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
		close(s.errCh)
	}()

	s.logger.Info("HTTP服务已启动", zap.String("addr", s.httpServer.Addr))
}

// WaitForShutdown 等待退出信号或服务异常
func (s *Server) WaitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
	)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
		return nil
	case err, ok := <-s.errCh:
		if !ok {
			return nil
		}
		return errors.Wrap(err, errors.ErrUnknown, "HTTP服务异常退出")
	}
}

// Shutdown 优雅关闭服务器，最后关闭串口
func (s *Server) Shutdown() error {
	s.logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("关闭超时，强制退出", zap.Error(err))
		firstErr = errors.Wrap(err, errors.ErrTimeout, "关闭HTTP服务")
	}

	if err := s.link.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// serialConfigFrom 将配置转换为串口链路配置
func serialConfigFrom(cfg *config.SerialConfig) *hardware.SerialConfig {
	return &hardware.SerialConfig{
		Port:         cfg.Port,
		BaudRate:     cfg.BaudRate,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		SettleDelay:  cfg.SettleDelay,
	}
}

// openLink 打开串口链路，调试模式使用内存串口
func openLink(ctx context.Context, cfg *config.SerialConfig) (*hardware.Link, error) {
	var opts []hardware.Option
	if cfg.MockMode {
		opts = append(opts, hardware.WithOpener(hardware.MockOpener(hardware.NewMockPort())))
	}
	return hardware.Open(ctx, serialConfigFrom(cfg), opts...)
}

// reportOpenFailure 打印串口打开失败的提示，串口不可用时给出排查建议
func reportOpenFailure(port string, err error) error {
	if errors.IsCritical(err) {
		printConnectFailure(port, err)
	} else {
		fmt.Fprintf(os.Stderr, "已取消连接串口 %s: %v\n", port, err)
	}
	return reported(err)
}

// printConnectFailure 打印串口连接失败的提示
func printConnectFailure(port string, err error) {
	fmt.Fprintf(os.Stderr, "❌ 无法连接串口 %s\n", port)
	fmt.Fprintf(os.Stderr, "   错误: %v\n", err)
	fmt.Fprintln(os.Stderr, "   请检查串口名称，并确认没有其他程序占用该串口。")
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("serial-control\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("🚀 控制页面: http://%s\n", cfg.Server.Addr())
	fmt.Printf("   串口: %s @ %d", cfg.Serial.Port, cfg.Serial.BaudRate)
	if cfg.Serial.MockMode {
		fmt.Print(" (模拟)")
	}
	fmt.Println()
	if file := config.ConfigFile(); file != "" {
		fmt.Printf("   配置文件: %s\n", file)
	}
	fmt.Println("   按 Ctrl+C 退出")
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
