package watchdog

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kirsle/configdir"
	"github.com/leighmacdonald/watchdog/internal/store"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const configRoot = "watchdog"

const defaultConfigFileName = "watchdog.yaml"

var errConfigNotFound = errors.New("config path does not exist")

type RunMode string

const (
	ModeProduction RunMode = "production"
	ModeDebug      RunMode = "debug"
	ModeTest       RunMode = "test"
)

type HTTPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	// Token, when set, must be sent as a bearer token on every api request.
	Token string `yaml:"token"`
}

// SaveTypes selects which punishment types are written to history.
type SaveTypes struct {
	Bans    bool `yaml:"bans"`
	Unbans  bool `yaml:"unbans"`
	Kicks   bool `yaml:"kicks"`
	Mutes   bool `yaml:"mutes"`
	Unmutes bool `yaml:"unmutes"`
}

type PunishmentSaving struct {
	Save  bool      `yaml:"save"`
	Types SaveTypes `yaml:"types"`
}

// ShouldSave reports whether a local punishment of the action is persisted.
func (p PunishmentSaving) ShouldSave(action store.Action) bool {
	if !p.Save {
		return false
	}

	switch action {
	case store.ActionBan:
		return p.Types.Bans
	case store.ActionUnban:
		return p.Types.Unbans
	case store.ActionKick:
		return p.Types.Kicks
	case store.ActionMute:
		return p.Types.Mutes
	case store.ActionUnmute:
		return p.Types.Unmutes
	default:
		return false
	}
}

type Features struct {
	ChatRelay    bool `yaml:"chat_relay"`
	ActivityFeed bool `yaml:"activity_feed"`
}

type ServerConfig struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	Password string `yaml:"password"`
	// AdminListSaving enables roster monitoring and the unauthorized punishment checks.
	AdminListSaving bool              `yaml:"admin_list_saving"`
	RollbackAdmins  bool              `yaml:"rollback_admins"`
	IngameCommands  []string          `yaml:"ingame_commands"`
	Punishments     *PunishmentSaving `yaml:"punishments,omitempty"`
	Features        Features          `yaml:"features"`
	Webhooks        map[string]string `yaml:"webhooks"`
}

func (cfg ServerConfig) Addr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port)))
}

// SavesPunishment reports whether a local punishment of the action is persisted. Servers
// without a punishments section save everything.
func (cfg ServerConfig) SavesPunishment(action store.Action) bool {
	if cfg.Punishments == nil {
		return true
	}

	return cfg.Punishments.ShouldSave(action)
}

// AllowsCommand reports whether the ingame command is enabled for the server.
func (cfg ServerConfig) AllowsCommand(name string) bool {
	for _, command := range cfg.IngameCommands {
		if command == name {
			return true
		}
	}

	return false
}

type Settings struct {
	configPath string

	RunMode               RunMode        `yaml:"run_mode"`
	LogLevel              string         `yaml:"log_level"`
	DebugLogEnabled       bool           `yaml:"debug_log_enabled"`
	DatabasePath          string         `yaml:"database_path"`
	RedisURL              string         `yaml:"redis_url"`
	PlayerCacheTTL        time.Duration  `yaml:"player_cache_ttl"`
	SteamAPIKey           string         `yaml:"steam_api_key"`
	PasteURL              string         `yaml:"paste_url"`
	SyncServerPunishments bool           `yaml:"sync_server_punishments"`
	MentionRoles          []string       `yaml:"mention_roles"`
	IngamePrefix          string         `yaml:"ingame_prefix"`
	HTTP                  HTTPConfig     `yaml:"http"`
	Servers               []ServerConfig `yaml:"servers"`
}

func NewSettings() *Settings {
	return &Settings{
		RunMode:        ModeProduction,
		LogLevel:       "info",
		PlayerCacheTTL: DurationCacheTimeout,
		PasteURL:       "https://hastebin.com",
		IngamePrefix:   "!",
		HTTP: HTTPConfig{
			Enabled:    false,
			ListenAddr: "localhost:8910",
		},
	}
}

// Live reports whether punishments have external side effects.
func (s *Settings) Live() bool {
	return s.RunMode == ModeProduction
}

func (s *Settings) Server(name string) (ServerConfig, bool) {
	for _, server := range s.Servers {
		if server.Name == name {
			return server, true
		}
	}

	return ServerConfig{}, false
}

func (s *Settings) ServerNames() []string {
	names := make([]string, 0, len(s.Servers))
	for _, server := range s.Servers {
		names = append(names, server.Name)
	}

	return names
}

func (s *Settings) Validate() error {
	seen := map[string]bool{}

	for idx, server := range s.Servers {
		if server.Name == "" {
			return errors.Wrapf(ErrInvalidConfig, "server %d has no name", idx)
		}

		if seen[server.Name] {
			return errors.Wrapf(ErrInvalidConfig, "duplicate server name: %s", server.Name)
		}

		seen[server.Name] = true

		if server.Host == "" {
			return errors.Wrapf(ErrInvalidConfig, "server %s has no host", server.Name)
		}

		if server.Port == 0 {
			return errors.Wrapf(ErrInvalidConfig, "server %s has no port", server.Name)
		}
	}

	switch s.RunMode {
	case ModeProduction, ModeDebug, ModeTest:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown run_mode: %s", s.RunMode)
	}

	return nil
}

func (s *Settings) ConfigRoot() string {
	configPath := configdir.LocalConfig(configRoot)
	if err := configdir.MakePath(configPath); err != nil {
		return ""
	}

	return configPath
}

func (s *Settings) ConfigPath() string {
	return s.configPath
}

func (s *Settings) DBPath() string {
	if s.DatabasePath != "" {
		return expandPath(s.DatabasePath)
	}

	return filepath.Join(s.ConfigRoot(), "watchdog.sqlite")
}

func (s *Settings) LogFilePath() string {
	return filepath.Join(s.ConfigRoot(), "watchdog.log")
}

// ReadDefaultOrCreate reads the settings from the default config location, writing out the
// defaults when no file exists yet.
func (s *Settings) ReadDefaultOrCreate() error {
	errRead := s.ReadFilePath(filepath.Join(s.ConfigRoot(), defaultConfigFileName))
	if errRead != nil && errors.Is(errRead, errConfigNotFound) {
		return s.WriteFilePath(s.configPath)
	}

	return errRead
}

func (s *Settings) ReadFilePath(filePath string) error {
	filePath = expandPath(filePath)
	s.configPath = filePath

	if _, errStat := os.Stat(filePath); os.IsNotExist(errStat) {
		return errConfigNotFound
	}

	settingsFile, errOpen := os.Open(filePath)
	if errOpen != nil {
		return errors.Wrap(errOpen, "Failed to open settings")
	}

	defer func() {
		_ = settingsFile.Close()
	}()

	return s.Read(settingsFile)
}

func (s *Settings) Read(input io.Reader) error {
	if errDecode := yaml.NewDecoder(input).Decode(s); errDecode != nil && !errors.Is(errDecode, io.EOF) {
		return errors.Wrap(errDecode, "Failed to decode settings")
	}

	return s.Validate()
}

func (s *Settings) WriteFilePath(filePath string) error {
	settingsFile, errOpen := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if errOpen != nil {
		return errors.Wrapf(errOpen, "Failed to open settings file for writing")
	}

	defer func() {
		_ = settingsFile.Close()
	}()

	return s.Write(settingsFile)
}

func (s *Settings) Write(output io.Writer) error {
	encoder := yaml.NewEncoder(output)
	encoder.SetIndent(2)

	if errEncode := encoder.Encode(s); errEncode != nil {
		return errors.Wrap(errEncode, "Failed to encode settings")
	}

	return errors.Wrap(encoder.Close(), "Failed to flush settings")
}

func expandPath(path string) string {
	expanded, errExpand := homedir.Expand(path)
	if errExpand != nil {
		return path
	}

	return expanded
}

func (cfg ServerConfig) String() string {
	return fmt.Sprintf("%s (%s)", cfg.Name, cfg.Addr())
}
