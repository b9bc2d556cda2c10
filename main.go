package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"buzzlink/config"
	"buzzlink/haptic"
	"buzzlink/transport"
	"buzzlink/xlog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// コマンドライン引数をパース
	args := config.ParseCommandLineArgs()

	// 設定を読み込む
	cfg, err := config.LoadConfig(args.ConfigFile)
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}
	cfg.ApplyCommandLineArgs(args)

	// ロガーをセットアップ
	logger, err := xlog.Setup(cfg.Log.Filename, cfg.Debug)
	if err != nil {
		return err
	}
	defer logger.Close()

	// バックエンドとエンジンを組み立てる
	backend := transport.NewWebSocketBackend(cfg.Backend.Addr)
	engine := haptic.NewEngine(backend, haptic.Options{
		SettingsFile: cfg.Settings.Filename,
		QueueSize:    cfg.Events.QueueSize,
		FoldTags:     cfg.Dispatch.TagMatch == config.TagMatchFold,
	})

	if err := engine.Connect(); err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Warn("failed to close session", "err", err)
		}
	}()

	if err := engine.ScanForDevices(); err != nil {
		slog.Warn("failed to start scan", "err", err)
	}

	// SIGINT / SIGTERM で終了
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// SIGHUP でログファイルをローテーション
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

	// ホストのポーリングを模した周期でイベントを取り出してログに流す
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			slog.Info("shutting down")
			return nil
		case <-hupCh:
			if err := xlog.GetLogger().Rotate(); err != nil {
				slog.Warn("failed to rotate log file", "err", err)
			} else {
				slog.Info("log file rotated")
			}
		case <-ticker.C:
			for _, event := range engine.PollEvents() {
				slog.Info("event", "descriptor", event.Descriptor())
			}
		}
	}
}
