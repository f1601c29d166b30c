package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wfunc/serial-control/internal/config"
	"github.com/wfunc/serial-control/internal/errors"
	"github.com/wfunc/serial-control/internal/hardware"
	"github.com/wfunc/serial-control/internal/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	configPath string
	hostFlag   string
	portFlag   int
	deviceFlag string
	baudFlag   int
	mockFlag   bool
)

var rootCmd = &cobra.Command{
	Use:           "serial-control",
	Short:         "Browser control page for a serial device (on / half / off)",
	Long:          "Serves a local web page whose buttons write on, half or off commands to a device on a serial port.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the serial port and serve the control page",
	RunE:  runServe,
}

var sendCmd = &cobra.Command{
	Use:       "send <on|half|off>",
	Short:     "Write a single command to the device and exit",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "half", "off"},
	RunE:      runSend,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE:  runConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pf.StringVar(&deviceFlag, "device", "", "串口设备，例如 COM3 或 /dev/ttyACM0")
	pf.IntVar(&baudFlag, "baud", 0, "波特率")
	pf.BoolVar(&mockFlag, "mock", false, "使用模拟串口")

	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringVar(&hostFlag, "host", "", "监听地址")
		c.Flags().IntVarP(&portFlag, "port", "p", 0, "监听端口")
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig 加载配置、应用命令行覆盖并校验
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := applyConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return nil, reported(err)
	}
	return cfg, nil
}

func applyConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.Init(configPath); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad)
	}

	overrides := []struct {
		flag  string
		key   string
		value interface{}
	}{
		{"host", "server.host", hostFlag},
		{"port", "server.port", portFlag},
		{"device", "serial.port", deviceFlag},
		{"baud", "serial.baud_rate", baudFlag},
		{"mock", "serial.mock_mode", mockFlag},
	}
	for _, o := range overrides {
		f := cmd.Flags().Lookup(o.flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := config.Set(o.key, o.value); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigParse, o.flag)
		}
	}

	cfg := config.Get()
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValidate)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return reported(err)
	}
	defer logger.Sync()

	logger.Info("正在启动 serial-control",
		zap.String("version", Version),
		zap.String("port", cfg.Serial.Port),
		zap.Int("baud_rate", cfg.Serial.BaudRate))

	// 串口打不开时不提供服务
	link, err := openLink(commandContext(cmd), &cfg.Serial)
	if err != nil {
		return reportOpenFailure(cfg.Serial.Port, err)
	}
	fmt.Printf("✅ 已连接串口 %s\n", cfg.Serial.Port)

	// 热更新仅作用于日志级别，串口和监听地址需重启生效
	config.Watch(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Log.Level)
		logger.Info("配置已更新", zap.String("log_level", newCfg.Log.Level))
		if newCfg.Serial != cfg.Serial || newCfg.Server.Addr() != cfg.Server.Addr() {
			logger.Warn("串口或监听地址的修改需要重启后生效")
		}
	})

	server := NewServer(cfg, link)
	server.Start()
	printStartInfo(cfg)

	waitErr := server.WaitForShutdown()
	if waitErr != nil {
		logger.Error("服务器运行失败", zap.Error(waitErr))
	}

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		if waitErr == nil {
			return err
		}
	}

	logger.Info("服务器已安全关闭")
	return waitErr
}

func runSend(cmd *cobra.Command, args []string) error {
	command, err := hardware.ParseCommand(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "无效的命令 %q，可选: on, half, off\n", args[0])
		return reported(err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logger.Init(&cfg.Log); err != nil {
		return err
	}
	defer logger.Sync()

	ctx := commandContext(cmd)
	link, err := openLink(ctx, &cfg.Serial)
	if err != nil {
		return reportOpenFailure(cfg.Serial.Port, err)
	}
	defer link.Close()

	if err := link.Send(ctx, command); err != nil {
		fmt.Fprintf(os.Stderr, "发送命令失败: %v\n", err)
		return reported(err)
	}

	fmt.Printf("已发送命令: %s\n", command)
	return nil
}

// commandContext 返回命令上下文，直接调用 RunE 时可能为空
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}
