package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"username-checker/internal/admin"
	"username-checker/internal/config"
	"username-checker/internal/counter"
	"username-checker/internal/dispatcher"
	"username-checker/internal/logger"
	"username-checker/internal/metrics"
	"username-checker/internal/server"
)

var (
	configFile = flag.String("config", "", "配置文件路径（为空时使用默认配置）")
	port       = flag.Int("port", 0, "监听端口，覆盖配置文件")
	version    = flag.Bool("version", false, "显示版本信息")
)

const (
	appVersion = "1.0.0"
	appName    = "Username Availability Server"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", appName, appVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		if *port < 1 || *port > 65535 {
			fmt.Printf("无效的端口: %d\n", *port)
			os.Exit(1)
		}
		cfg.Server.Port = *port
	}

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	logger.Infof("启动 %s v%s", appName, appVersion)

	store := counter.New(cfg)
	m := metrics.NewMetrics()
	srv := server.NewServer(cfg, store, m)

	// 先绑定端口，失败时立即以非零状态退出
	ln, err := srv.Listen()
	if err != nil {
		logger.Fatalf("绑定端口失败: %v", err)
	}

	printBanner(cfg)

	serverErr := make(chan error, 2)
	go func() {
		if err := srv.Serve(ln); err != nil {
			serverErr <- fmt.Errorf("服务运行失败: %w", err)
		}
	}()

	var adminServer *admin.Server
	if cfg.Admin.Enabled {
		adminServer = admin.NewServer(cfg.Admin, store, m, appVersion)
		go func() {
			if err := adminServer.Start(); err != nil {
				serverErr <- fmt.Errorf("管理服务运行失败: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-serverErr:
		logger.Errorf("服务器错误: %v", err)
		exitCode = 1
	case sig := <-sigChan:
		logger.Infof("接收到信号: %s，开始优雅关闭", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Errorf("关闭服务失败: %v", err)
		exitCode = 1
	}
	if adminServer != nil {
		if err := adminServer.Stop(shutdownCtx); err != nil {
			logger.Errorf("关闭管理服务失败: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Errorf("关闭计数器存储失败: %v", err)
	}

	logger.Info("服务已停止")
	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}

// printBanner 打印可用接口和测试用的用户名
func printBanner(cfg *config.Config) {
	addr := cfg.Server.Addr()
	logger.Infof("可用接口: GET http://%s%s?%s=<username>", addr, dispatcher.Path, dispatcher.ParamUserName)
	logger.Infof("已被占用的测试用户名: %v", cfg.Faults.UnavailableUsernames)
	logger.Infof("故障注入用户名: %v, servererror, maintenance, maintenance!, illegalresponse", cfg.Faults.ForbiddenUsernames)
	if cfg.Admin.Enabled {
		logger.Infof("管理接口: http://%s/health, /admin/maintenance, %s", cfg.Admin.Addr(), cfg.Admin.MetricsPath)
	}
	logger.Info("按 Ctrl+C 停止服务")
}
