package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/9triver/opcgw/internal/bootstrap"
	"github.com/9triver/opcgw/internal/config"
	"github.com/9triver/opcgw/internal/util"
	"github.com/sirupsen/logrus"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}
	util.InitLogger(cfg.Logging.Level)
	if cfg.Logging.ToFile {
		if _, err := util.InitLoggerWithFileAndRetention(cfg.Logging.Dir, cfg.Logging.RetentionDays); err != nil {
			logrus.Fatalf("Failed to initialize log file: %v", err)
		}
		defer util.CloseLogFile()
	}

	// 使用 Bootstrap 初始化所有模块
	opcgw, err := bootstrap.Initialize(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize: %v", err)
	}
	defer opcgw.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := opcgw.Start(ctx); err != nil {
		logrus.Errorf("Failed to start services: %v", err)
		return
	}
	logrus.Infof("Gateway %s started", cfg.Gateway.ApplicationURI)

	// 优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logrus.Info("Shutting down...")
}
