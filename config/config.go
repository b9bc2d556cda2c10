package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultConfigFile はデフォルトの設定ファイル名
	DefaultConfigFile = "config.toml"
)

// TagMatch はイベントタグの照合規則を表す
type TagMatch string

const (
	// TagMatchFold はトリム + 大文字小文字を無視した照合（デフォルト）
	TagMatchFold TagMatch = "fold"
	// TagMatchExact は完全一致での照合
	TagMatchExact TagMatch = "exact"
)

// Config はアプリケーション全体の設定を表す
type Config struct {
	Debug bool `toml:"debug"`
	Log   struct {
		Filename string `toml:"filename"`
	} `toml:"log"`
	Backend struct {
		Addr string `toml:"addr"` // e.g., "ws://localhost:12345"
	} `toml:"backend"`
	Settings struct {
		Filename string `toml:"filename"`
	} `toml:"settings"`
	Events struct {
		QueueSize int `toml:"queue_size"` // イベントブリッジの容量
	} `toml:"events"`
	Dispatch struct {
		TagMatch TagMatch `toml:"tag_match"` // "fold" または "exact"
	} `toml:"dispatch"`
}

// NewConfig はデフォルト設定を持つConfigを作成する
func NewConfig() *Config {
	cfg := &Config{
		Debug: false,
	}
	cfg.Log.Filename = "buzzlink.log"
	cfg.Backend.Addr = "ws://localhost:12345"
	cfg.Settings.Filename = "device_settings.json"
	cfg.Events.QueueSize = 128
	cfg.Dispatch.TagMatch = TagMatchFold
	return cfg
}

// Validate は設定値の整合性を確認する
func (c *Config) Validate() error {
	if c.Events.QueueSize <= 0 {
		return fmt.Errorf("events.queue_size must be positive, got %d", c.Events.QueueSize)
	}
	switch c.Dispatch.TagMatch {
	case TagMatchFold, TagMatchExact:
	default:
		return fmt.Errorf("dispatch.tag_match must be %q or %q, got %q", TagMatchFold, TagMatchExact, c.Dispatch.TagMatch)
	}
	return nil
}

// LoadConfig は設定を読み込む
// 以下の優先順位でロードする:
// 1. 指定されたパスの設定ファイル（指定がある場合）
// 2. カレントディレクトリのデフォルト設定ファイル（存在する場合）
// 3. デフォルト設定
func LoadConfig(configPath string) (*Config, error) {
	config := NewConfig()

	// 設定ファイルパスの解決
	filePath := configPath
	if filePath == "" {
		// 指定がなければデフォルトファイルを探す
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			filePath = DefaultConfigFile
		} else {
			// デフォルトファイルもなければ、デフォルト設定をそのまま返す
			return config, nil
		}
	}

	// 設定ファイルが指定または存在する場合は読み込む
	if _, err := toml.DecodeFile(filePath, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyCommandLineArgs はコマンドライン引数で指定された値を設定に適用する
func (c *Config) ApplyCommandLineArgs(args CommandLineArgs) {
	// コマンドライン引数で指定された値で上書き
	if args.DebugSpecified {
		c.Debug = args.Debug
	}
	if args.LogFilenameSpecified {
		c.Log.Filename = args.LogFilename
	}
	if args.BackendAddrSpecified {
		c.Backend.Addr = args.BackendAddr
	}
	if args.SettingsFilenameSpecified {
		c.Settings.Filename = args.SettingsFilename
	}
}

// CommandLineArgs はコマンドライン引数からの値を保持する
type CommandLineArgs struct {
	// 設定ファイル (メタ設定)
	ConfigFile      string
	ConfigSpecified bool

	// 一般設定
	Debug          bool
	DebugSpecified bool

	// ログ設定
	LogFilename          string
	LogFilenameSpecified bool

	// バックエンド接続設定
	BackendAddr          string
	BackendAddrSpecified bool

	// デバイス設定ファイル
	SettingsFilename          string
	SettingsFilenameSpecified bool
}

// ParseCommandLineArgs はコマンドライン引数をパースする
func ParseCommandLineArgs() CommandLineArgs {
	var args CommandLineArgs

	// フラグの定義
	configFileFlag := flag.String("config", "", "TOML設定ファイルのパスを指定する")
	debugFlag := flag.Bool("debug", false, "デバッグモードを有効にする")
	logFilenameFlag := flag.String("log", "buzzlink.log", "ログファイル名を指定する")
	backendAddrFlag := flag.String("backend", "ws://localhost:12345", "バックエンドの接続先アドレスを指定する")
	settingsFlag := flag.String("settings", "device_settings.json", "デバイス設定ファイルのパスを指定する")

	// コマンドライン引数を解析
	flag.Parse()

	// コマンドライン引数を直接解析して、フラグが指定されたかどうかを確認
	argsMap := make(map[string]bool)
	for i := 1; i < len(os.Args); i++ {
		arg := os.Args[i]
		if len(arg) > 0 && arg[0] == '-' {
			// フラグ名を抽出 (-flag または --flag の形式)
			flagName := arg
			if len(flagName) > 1 && flagName[1] == '-' {
				flagName = flagName[2:] // --flag の場合
			} else {
				flagName = flagName[1:] // -flag の場合
			}

			// = が含まれている場合は分割
			for j := 0; j < len(flagName); j++ {
				if flagName[j] == '=' {
					flagName = flagName[:j]
					break
				}
			}

			argsMap[flagName] = true

			// 次の引数が値の場合はスキップ
			if i+1 < len(os.Args) && len(os.Args[i+1]) > 0 && os.Args[i+1][0] != '-' {
				i++
			}
		}
	}

	// 値と指定有無の設定
	args.ConfigFile = *configFileFlag
	args.ConfigSpecified = argsMap["config"]

	args.Debug = *debugFlag
	args.DebugSpecified = argsMap["debug"]

	args.LogFilename = *logFilenameFlag
	args.LogFilenameSpecified = argsMap["log"]

	args.BackendAddr = *backendAddrFlag
	args.BackendAddrSpecified = argsMap["backend"]

	args.SettingsFilename = *settingsFlag
	args.SettingsFilenameSpecified = argsMap["settings"]

	return args
}
