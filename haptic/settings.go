package haptic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DeviceSettings は、1デバイス分の設定を表す
type DeviceSettings struct {
	Enabled bool     `json:"enabled"`
	Tags    []string `json:"tags,omitempty"`
}

// SettingsStore は、デバイス名ごとの有効フラグとイベントタグを保持する
// デバイスが現在接続されているかどうかとは独立している
// （無効化されたデバイスも Connected のままで、ディスパッチ時に除外されるだけ）
//
// メモリ上の変更は即時反映され、Store() を呼んだときにのみ永続化される
type SettingsStore struct {
	mu       sync.RWMutex
	filename string
	devices  map[string]DeviceSettings
}

// NewSettingsStore は、指定ファイルを永続化先とするSettingsStoreを作成する
func NewSettingsStore(filename string) *SettingsStore {
	return &SettingsStore{
		filename: filename,
		devices:  make(map[string]DeviceSettings),
	}
}

// Load は、永続化されたマッピングを読み込む
// ファイルが存在しない場合は何もしない（全デバイスがデフォルトの有効状態になる）
func (s *SettingsStore) Load() error {
	file, err := os.Open(s.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open settings file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	loaded := make(map[string]DeviceSettings)
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&loaded); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = loaded
	return nil
}

// IsEnabled は、デバイスの有効フラグを返す
// 未知のデバイス名に対してはエラーにせず true を返す
func (s *SettingsStore) IsEnabled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.devices[name]; ok {
		return d.Enabled
	}
	return true
}

// SetEnabled は、デバイスの有効フラグを設定する
// エントリは初回参照時に遅延生成される
func (s *SettingsStore) SetEnabled(name string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.entryLocked(name)
	d.Enabled = enabled
	s.devices[name] = d
}

// Tags は、デバイスに関連付けられたイベントタグを返す
func (s *SettingsStore) Tags(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[name]
	if !ok || len(d.Tags) == 0 {
		return nil
	}
	tags := make([]string, len(d.Tags))
	copy(tags, d.Tags)
	return tags
}

// SetTags は、デバイスのイベントタグを設定する
// タグは前後の空白を除去して保存する。空のタグは無視される
func (s *SettingsStore) SetTags(name string, tags []string) {
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.entryLocked(name)
	d.Tags = cleaned
	s.devices[name] = d
}

// KnownNames は、設定に登録されている全デバイス名をソートして返す
func (s *SettingsStore) KnownNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.devices))
	for name := range s.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store は、現在のマッピング全体を永続化する
// 一時ファイルに書き出してからリネームすることで、書き込みが完了
// できない場合でもディスク上の既存の状態を壊さない
func (s *SettingsStore) Store() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.devices, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return PersistenceError{Err: err}
	}

	dir := filepath.Dir(s.filename)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.filename)+".tmp-*")
	if err != nil {
		return PersistenceError{Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return PersistenceError{Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return PersistenceError{Err: err}
	}

	if err := os.Rename(tmpName, s.filename); err != nil {
		_ = os.Remove(tmpName)
		return PersistenceError{Err: err}
	}

	return nil
}

// entryLocked は、エントリを返す。存在しない場合はデフォルト有効で作成する
// s.mu のロックを保持した状態で呼ぶこと
func (s *SettingsStore) entryLocked(name string) DeviceSettings {
	if d, ok := s.devices[name]; ok {
		return d
	}
	d := DeviceSettings{Enabled: true}
	s.devices[name] = d
	return d
}
