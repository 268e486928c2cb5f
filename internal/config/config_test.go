package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lobby.conf")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndOverlay(t *testing.T) {
	path := writeConfig(t, `
# comment line
host_name = h
lobby_port = 7000
game_port_min = 9000
game_port_max = 9010
max_games = 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HostName != "h" || cfg.LobbyPort != 7000 {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.MaxPlayersDefault != DefaultMaxPlayers {
		t.Fatalf("default not applied: %+v", cfg)
	}
	if cfg.MaxGames != 2 {
		t.Fatalf("max_games override not applied: %+v", cfg)
	}
}

func TestLoadIgnoresUnknownKeysAndTrailingComments(t *testing.T) {
	path := writeConfig(t, "host_name = h # trailing comment\nlobby_port = 7000\nbogus_key = 1\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HostName != "h" {
		t.Fatalf("expected trailing comment stripped, got %q", cfg.HostName)
	}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty host", Config{LobbyPort: 1, GamePortMin: 1, GamePortMax: 2, MaxGames: 1, MaxPlayersDefault: 1, JoinTimeoutSec: 1, DropTimeoutSec: 1, IdleTimeoutSec: 1}},
		{"inverted port range", Config{HostName: "h", LobbyPort: 1, GamePortMin: 10, GamePortMax: 5, MaxGames: 1, MaxPlayersDefault: 1, JoinTimeoutSec: 1, DropTimeoutSec: 1, IdleTimeoutSec: 1}},
		{"max_games too big", Config{HostName: "h", LobbyPort: 1, GamePortMin: 1, GamePortMax: 2, MaxGames: 33, MaxPlayersDefault: 1, JoinTimeoutSec: 1, DropTimeoutSec: 1, IdleTimeoutSec: 1}},
		{"zero join timeout", Config{HostName: "h", LobbyPort: 1, GamePortMin: 1, GamePortMax: 2, MaxGames: 1, MaxPlayersDefault: 1, JoinTimeoutSec: 0, DropTimeoutSec: 1, IdleTimeoutSec: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := Default()
	cfg.HostName = "h"
	cfg.LobbyPort = 7000
	cfg.GamePortMin = 9000
	cfg.GamePortMax = 9010
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
