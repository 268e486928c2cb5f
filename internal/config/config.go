// Package config loads the lobby server's key=value configuration
// file: a bespoke format, not YAML/TOML, so it gets a small
// hand-rolled parser rather than a config library.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	MaxGamesLimit      = 32
	MaxPlayersLimit    = 16
	MaxClientsLimit    = 64
	DefaultMaxGames    = 5
	DefaultMaxPlayers  = 10
	DefaultJoinTimeout = 600
	DefaultDropTimeout = 15
	DefaultIdleTimeout = 300
)

// Config is the read-only-after-startup server configuration.
type Config struct {
	HostName          string
	LobbyPort         int
	GamePortMin       int
	GamePortMax       int
	MaxGames          int
	MaxPlayersDefault int
	JoinTimeoutSec    int
	DropTimeoutSec    int
	IdleTimeoutSec    int
	UDPDupEnabled     bool
	UDPDupDelayMs     int
}

// Default returns a Config with every optional key at its documented
// default. HostName, LobbyPort, GamePortMin and GamePortMax have no
// sane default and are left zero; Validate rejects them until the
// file sets them.
func Default() Config {
	return Config{
		MaxGames:          DefaultMaxGames,
		MaxPlayersDefault: DefaultMaxPlayers,
		JoinTimeoutSec:    DefaultJoinTimeout,
		DropTimeoutSec:    DefaultDropTimeout,
		IdleTimeoutSec:    DefaultIdleTimeout,
		UDPDupEnabled:     false,
		UDPDupDelayMs:     0,
	}
}

// Load reads and parses the config file at path, starting from
// Default and overlaying recognized keys.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if hash := strings.IndexByte(line, '#'); hash >= 0 {
			line = line[:hash]
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if key == "" || value == "" {
			continue
		}
		if err := cfg.set(key, value); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	return cfg, nil
}

func (cfg *Config) set(key, value string) error {
	switch key {
	case "host_name":
		cfg.HostName = value
	case "lobby_port":
		return setInt(&cfg.LobbyPort, value)
	case "game_port_min":
		return setInt(&cfg.GamePortMin, value)
	case "game_port_max":
		return setInt(&cfg.GamePortMax, value)
	case "max_games":
		return setInt(&cfg.MaxGames, value)
	case "max_players_default":
		return setInt(&cfg.MaxPlayersDefault, value)
	case "join_timeout_sec":
		return setInt(&cfg.JoinTimeoutSec, value)
	case "drop_timeout_sec":
		return setInt(&cfg.DropTimeoutSec, value)
	case "idle_timeout_sec":
		return setInt(&cfg.IdleTimeoutSec, value)
	case "udp_dup_enabled":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("udp_dup_enabled: %w", err)
		}
		cfg.UDPDupEnabled = v != 0
	case "udp_dup_delay_ms":
		return setInt(&cfg.UDPDupDelayMs, value)
	}
	// Unrecognized keys are ignored, matching the original loader.
	return nil
}

func setInt(dst *int, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// Validate checks every configured bound. It must run after Load and
// before the server binds any socket.
func (cfg Config) Validate() error {
	if cfg.HostName == "" || len(cfg.HostName) > 255 {
		return fmt.Errorf("host_name must be non-empty and <= 255 chars")
	}
	if cfg.LobbyPort < 1 || cfg.LobbyPort > 65535 {
		return fmt.Errorf("lobby_port out of range: %d", cfg.LobbyPort)
	}
	if cfg.GamePortMin < 1 || cfg.GamePortMin > 65535 {
		return fmt.Errorf("game_port_min out of range: %d", cfg.GamePortMin)
	}
	if cfg.GamePortMax < 1 || cfg.GamePortMax > 65535 {
		return fmt.Errorf("game_port_max out of range: %d", cfg.GamePortMax)
	}
	if cfg.GamePortMin > cfg.GamePortMax {
		return fmt.Errorf("game_port_min (%d) > game_port_max (%d)", cfg.GamePortMin, cfg.GamePortMax)
	}
	if cfg.MaxGames < 1 || cfg.MaxGames > MaxGamesLimit {
		return fmt.Errorf("max_games out of range: %d", cfg.MaxGames)
	}
	if cfg.MaxPlayersDefault < 1 || cfg.MaxPlayersDefault > MaxPlayersLimit {
		return fmt.Errorf("max_players_default out of range: %d", cfg.MaxPlayersDefault)
	}
	if cfg.JoinTimeoutSec <= 0 {
		return fmt.Errorf("join_timeout_sec must be > 0")
	}
	if cfg.DropTimeoutSec <= 0 {
		return fmt.Errorf("drop_timeout_sec must be > 0")
	}
	if cfg.IdleTimeoutSec <= 0 {
		return fmt.Errorf("idle_timeout_sec must be > 0")
	}
	if cfg.UDPDupDelayMs < 0 || cfg.UDPDupDelayMs > 1000 {
		return fmt.Errorf("udp_dup_delay_ms out of range: %d", cfg.UDPDupDelayMs)
	}
	return nil
}
