// Package store implements the State Store (§4.H): durable JSON
// configuration under DATA_DIR, written via atomic replace. The settings,
// templates and bridges documents preserve unknown top-level fields across
// load/save cycles; the pin, debug-log and telegram-chats documents are
// written from their known fields only, so unknown fields in those files
// are dropped on save. Grounded on kojo's
// internal/session.Store (temp-file-then-rename) generalized to several
// documents instead of one.
package store

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/msbrogli/tmuxdeck/internal/model"
)

const (
	settingsFile      = "settings.json"
	templatesFile     = "templates.json"
	bridgesFile       = "bridges.json"
	pinFile           = "pin.json"
	debugLogFile      = "debug-log.json"
	telegramChatsFile = "telegram-chats.json"
)

// Store serializes every document save behind a single lock so concurrent
// savers never interleave a write.
type Store struct {
	dir string
	log *slog.Logger

	mu sync.Mutex // one lock is enough: saves are infrequent and never nested
}

func New(dir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{dir: dir, log: log}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// load reads name into known, returning the round-trip "extra" fields, or
// (nil, nil) if the file doesn't exist yet (first run).
func (s *Store) load(name string, known any) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return unmarshalPreserving(data, known)
}

// save atomically replaces name's contents (write-to-temp + rename, §4.H).
func (s *Store) save(name string, known any, extra map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := marshalPreserving(known, extra)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	full := s.path(name)
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// --- Settings ---

type Settings struct {
	Version             int    `json:"version"`
	TelegramBotToken    string `json:"telegramBotToken,omitempty"`
	TelegramTimeoutSecs int    `json:"telegramTimeoutSecs,omitempty"`
	ReportIntervalSecs  int    `json:"reportIntervalSecs,omitempty"`
	ContainerNamePrefix string `json:"containerNamePrefix,omitempty"`

	extra map[string]json.RawMessage
}

func defaultSettings() Settings {
	return Settings{Version: 1, TelegramTimeoutSecs: 60, ReportIntervalSecs: 5}
}

func (s *Store) LoadSettings() (Settings, error) {
	v := defaultSettings()
	extra, err := s.load(settingsFile, &v)
	if err != nil {
		return Settings{}, err
	}
	v.extra = extra
	return v, nil
}

func (s *Store) SaveSettings(v Settings) error {
	return s.save(settingsFile, v, v.extra)
}

// --- Templates ---

type templatesDoc struct {
	Version   int              `json:"version"`
	Templates []model.Template `json:"templates"`
}

// TemplatesDoc round-trips the extra fields alongside the templates list so
// SaveTemplates doesn't need separate bookkeeping between calls.
type TemplatesDoc struct {
	Templates []model.Template
	extra     map[string]json.RawMessage
}

func (s *Store) LoadTemplates() (TemplatesDoc, error) {
	doc := templatesDoc{Version: 1}
	extra, err := s.load(templatesFile, &doc)
	if err != nil {
		return TemplatesDoc{}, err
	}
	return TemplatesDoc{Templates: doc.Templates, extra: extra}, nil
}

func (s *Store) SaveTemplates(d TemplatesDoc) error {
	doc := templatesDoc{Version: 1, Templates: d.Templates}
	return s.save(templatesFile, doc, d.extra)
}

// --- Bridges ---

type bridgesDoc struct {
	Version int                  `json:"version"`
	Bridges []model.BridgeRecord `json:"bridges"`
}

// BridgesDoc round-trips the extra fields alongside the bridge record list.
type BridgesDoc struct {
	Bridges []model.BridgeRecord
	extra   map[string]json.RawMessage
}

func (s *Store) LoadBridges() (BridgesDoc, error) {
	doc := bridgesDoc{Version: 1}
	extra, err := s.load(bridgesFile, &doc)
	if err != nil {
		return BridgesDoc{}, err
	}
	return BridgesDoc{Bridges: doc.Bridges, extra: extra}, nil
}

func (s *Store) SaveBridges(d BridgesDoc) error {
	doc := bridgesDoc{Version: 1, Bridges: d.Bridges}
	return s.save(bridgesFile, doc, d.extra)
}

// --- PIN ---

type pinDoc struct {
	Version int    `json:"version"`
	Hash    string `json:"hash,omitempty"`
	Salt    string `json:"salt,omitempty"`
}

func (s *Store) LoadPIN() (hash, salt string, err error) {
	doc := pinDoc{Version: 1}
	if _, err := s.load(pinFile, &doc); err != nil {
		return "", "", err
	}
	return doc.Hash, doc.Salt, nil
}

func (s *Store) SavePIN(hash, salt string) error {
	return s.save(pinFile, pinDoc{Version: 1, Hash: hash, Salt: salt}, nil)
}

// --- Debug log (optional persistence of the in-memory ring, §4.G) ---

type debugLogDoc struct {
	Version int                `json:"version"`
	Entries []model.DebugEntry `json:"entries"`
}

func (s *Store) LoadDebugLog() ([]model.DebugEntry, error) {
	doc := debugLogDoc{Version: 1}
	if _, err := s.load(debugLogFile, &doc); err != nil {
		return nil, err
	}
	return doc.Entries, nil
}

func (s *Store) SaveDebugLog(entries []model.DebugEntry) error {
	return s.save(debugLogFile, debugLogDoc{Version: 1, Entries: entries}, nil)
}

// --- Telegram chats (added: recipients for the telegram channel) ---

type telegramChatsDoc struct {
	Version int      `json:"version"`
	ChatIDs []string `json:"chatIds"`
}

func (s *Store) LoadTelegramChats() ([]string, error) {
	doc := telegramChatsDoc{Version: 1}
	if _, err := s.load(telegramChatsFile, &doc); err != nil {
		return nil, err
	}
	return doc.ChatIDs, nil
}

func (s *Store) SaveTelegramChats(chatIDs []string) error {
	return s.save(telegramChatsFile, telegramChatsDoc{Version: 1, ChatIDs: chatIDs}, nil)
}

// WatchTemplatesDir watches dir (TEMPLATES_DIR) and invokes onChange,
// debounced by 250ms, after a write, create, remove or rename in it. It
// does not load template files itself (§4.H added; grounded on
// agent-commander's fsnotify reload loop).
func (s *Store) WatchTemplatesDir(dir string, onChange func()) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		var debounce *time.Timer
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, onChange)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("templates dir watch error", "err", err)
			}
		}
	}()

	return watcher.Close, nil
}
