package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Logger is a custom logger that writes to a file and can be rotated
type Logger struct {
	logFile  *os.File
	logMutex sync.Mutex
}

var (
	logger *Logger
)

func GetLogger() *Logger {
	return logger
}

func SetLogger(l *Logger) {
	if logger != nil {
		logger.Close()
	}
	logger = l
}

// NewLogger creates a new logger that writes to the specified file
func NewLogger(filename string) (*Logger, error) {
	// Open log file with append mode
	logFile, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ログファイルを開けませんでした: %w", err)
	}

	return &Logger{
		logFile: logFile,
	}, nil
}

// Write は、現在のログファイルに書き込む
// Rotate 後も同じ Logger を書き込み先として使い続けられる
func (l *Logger) Write(p []byte) (int, error) {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	if l.logFile == nil {
		return len(p), nil
	}
	return l.logFile.Write(p)
}

func (l *Logger) Close() {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	if l.logFile != nil {
		_ = l.logFile.Close()
		l.logFile = nil
	}
}

// Rotate closes and reopens the log file
func (l *Logger) Rotate() error {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	if l.logFile == nil {
		return nil // No log file to rotate
	}

	currentLogPath := l.logFile.Name()

	// Close existing log file
	_ = l.logFile.Close()

	// Reopen log file
	logFile, err := os.OpenFile(currentLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("ログファイルを再オープンできませんでした: %w", err)
	}

	l.logFile = logFile

	return nil
}

// Setup は、ファイルロガーを作成してslogのデフォルトロガーをそこに向ける
// debug が true の場合は標準出力にも出力する
func Setup(filename string, debug bool) (*Logger, error) {
	l, err := NewLogger(filename)
	if err != nil {
		return nil, err
	}
	SetLogger(l)

	var w io.Writer = l
	if debug {
		w = io.MultiWriter(w, os.Stdout)
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))

	return l, nil
}
