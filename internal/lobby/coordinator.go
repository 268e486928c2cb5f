package lobby

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mozzwald/fujinet-midimaze-connect/internal/config"
	"github.com/mozzwald/fujinet-midimaze-connect/internal/relay"
	"github.com/mozzwald/fujinet-midimaze-connect/internal/transport"
)

// Sentinel errors returned by Coordinator methods. Handlers translate
// each into the matching wire error code.
var (
	ErrInvalidName = errors.New("invalid name")
	ErrServerFull  = errors.New("server full")
	ErrBadClient   = errors.New("unknown client")
	ErrMaxGames    = errors.New("max games")
	ErrNotFound    = errors.New("not found")
)

const (
	clientIDLen = 8
	gameIDLen   = 8
	tokenLen    = 16

	// clientInactivityWindow is the fixed window after which the
	// janitor forgets a quiet client (spec §3, §4.2, §4.7 — "default
	// 3600 s"). Distinct from relayCfg.IdleTimeout: that one bounds how
	// long a Relay waits for traffic on an active game, this one bounds
	// how long a Client record survives with no lobby requests at all.
	clientInactivityWindow = 3600 * time.Second
)

// WaitResult is what /wait reports back.
type WaitResult struct {
	Status    string // "waiting" | "ready"
	Host      string
	Port      int
	Transport transport.Transport
	Token     string // always empty; no per-wait token is ever minted
	Players   int
	Max       int
}

// Coordinator is the single mutex-guarded owner of every piece of
// lobby state: the client table, the game table, and the port pool.
// Nothing in lobby takes its own lock — activation is a single
// operation spanning all three tables, kept behind one lock rather
// than three independently-locked pieces.
type Coordinator struct {
	mu sync.Mutex

	cfg      config.Config
	relayCfg relay.Config
	logger   *slog.Logger

	clients ClientDirectory
	games   *GameDirectory
	ports   *PortPool
}

// NewCoordinator builds a Coordinator from a validated Config.
func NewCoordinator(cfg config.Config, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		logger: logger,
		games:  NewGameDirectory(cfg.MaxGames),
		ports:  NewPortPool(cfg.GamePortMin, cfg.GamePortMax),
		relayCfg: relay.Config{
			DropTimeout:   time.Duration(cfg.DropTimeoutSec) * time.Second,
			IdleTimeout:   time.Duration(cfg.IdleTimeoutSec) * time.Second,
			UDPDupEnabled: cfg.UDPDupEnabled,
			UDPDupDelay:   time.Duration(cfg.UDPDupDelayMs) * time.Millisecond,
		},
	}
}

// Hello registers a new client.
func (c *Coordinator) Hello(name string) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !validName(name) {
		return nil, ErrInvalidName
	}
	client, ok := c.clients.Create(name, func() string { return genID(clientIDLen) })
	if !ok {
		return nil, ErrServerFull
	}
	return client, nil
}

// ListGames returns every game that has not ended, pending or active
// alike, so callers can see both (an `active` field on each listed
// game only makes sense if active games stay listed). Like every
// other authenticated endpoint, /list resolves and touches clientID
// and rejects an unknown one.
func (c *Coordinator) ListGames(clientID string) ([]*Game, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.clients.Touch(clientID, time.Now()) {
		return nil, ErrBadClient
	}

	var out []*Game
	for _, g := range c.games.List() {
		if !g.Ended {
			out = append(out, g)
		}
	}
	return out, nil
}

// CreateGame creates a new pending game owned by clientID.
func (c *Coordinator) CreateGame(clientID, name string, maxPlayers int, tr transport.Transport) (*Game, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, ok := c.clients.Find(clientID)
	if !ok {
		return nil, ErrBadClient
	}
	c.clients.Touch(clientID, time.Now())

	if c.games.Count() >= c.cfg.MaxGames {
		return nil, ErrMaxGames
	}
	game, ok := c.games.Create(name, maxPlayers, tr, client.ID, client.Name,
		func() string { return genID(gameIDLen) },
		func() string { return genID(tokenLen) },
	)
	if !ok {
		return nil, ErrMaxGames
	}
	return game, nil
}

// JoinGame adds clientID to gameID's membership. It always succeeds
// once the join itself is valid: if the join fills the game and
// activation then fails for lack of a free port, that failure is
// logged, not surfaced here — /join reports "waiting" regardless of
// activation outcome; activation failure drops the game, so it only
// becomes visible later, through /wait reporting not_found for it.
func (c *Coordinator) JoinGame(clientID, gameID string) (*Game, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, ok := c.clients.Find(clientID)
	if !ok {
		return nil, ErrBadClient
	}
	c.clients.Touch(clientID, time.Now())

	game, ok := c.games.Find(gameID)
	if !ok || game.Active || game.Ended {
		return nil, ErrNotFound
	}
	if err := c.games.Join(game, client.ID, client.Name, func() string { return genID(tokenLen) }); err != nil {
		return nil, err
	}
	if game.PlayerCount() >= game.MaxPlayers {
		c.activateLocked(game)
	}
	return game, nil
}

// LeaveGame removes clientID's membership from gameID. Leaving a game
// the client never joined is a no-op, not an error.
func (c *Coordinator) LeaveGame(clientID, gameID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.clients.Find(clientID); !ok {
		return ErrBadClient
	}
	c.clients.Touch(clientID, time.Now())

	game, ok := c.games.Find(gameID)
	if !ok {
		return ErrNotFound
	}
	c.games.Leave(game, clientID)
	if !game.Active && !game.Ended && game.PlayerCount() == 0 {
		c.games.RemoveByID(game.ID)
	}
	return nil
}

// Wait reports whether clientID has a pending relay start, checking
// PendingStart before gameID: a ready notification always wins over a
// stale or missing game_id.
func (c *Coordinator) Wait(clientID, gameID string) (WaitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, ok := c.clients.Find(clientID)
	if !ok {
		return WaitResult{}, ErrBadClient
	}
	c.clients.Touch(clientID, time.Now())

	if client.PendingStart != nil {
		ps := client.PendingStart
		client.PendingStart = nil
		return WaitResult{Status: "ready", Host: ps.Host, Port: ps.Port, Transport: ps.Transport}, nil
	}

	if gameID == "" {
		return WaitResult{Status: "waiting"}, nil
	}
	game, ok := c.games.Find(gameID)
	if !ok {
		return WaitResult{}, ErrNotFound
	}
	return WaitResult{Status: "waiting", Players: game.PlayerCount(), Max: game.MaxPlayers}, nil
}

// Ping refreshes clientID's last-seen timestamp.
func (c *Coordinator) Ping(clientID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.clients.Touch(clientID, time.Now()) {
		return ErrBadClient
	}
	return nil
}

// EndGame implements relay.Ender: a relay calls this exactly once,
// from its own goroutine, when it terminates. Like ExpirePending (run
// by the janitor), it is invoked from outside an HTTP handler, so it
// takes the same lock as everything else.
func (c *Coordinator) EndGame(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	game, ok := c.games.Find(gameID)
	if !ok {
		return
	}
	game.Active = false
	game.Ended = true
	c.ports.Release(game.Port)
	c.games.RemoveByID(gameID)
}

// activateLocked runs the five-step activation sequence: acquire a
// port, mark the game active, hand every member a pending-start
// notification, sever their memberships in every other pending game,
// and spawn the relay. Called with mu already held.
func (c *Coordinator) activateLocked(game *Game) {
	port, ok := c.ports.Acquire()
	if !ok {
		c.logger.Warn("lobby: activation failed, no free port", "game_id", game.ID)
		// Port-pool exhaustion drops the game rather than leaving it
		// stuck full-but-pending forever: members learn their game
		// vanished the next time they call /wait with its id.
		c.games.RemoveByID(game.ID)
		return
	}

	game.Port = port
	game.Active = true

	for _, m := range game.Members {
		if client, ok := c.clients.Find(m.ClientID); ok {
			client.PendingStart = &PendingStart{
				Host:      c.cfg.HostName,
				Port:      port,
				Transport: game.Transport,
			}
		}
		c.games.RemoveClientEverywhereExcept(m.ClientID, game)
	}

	spec := relay.GameSpec{
		ID:         game.ID,
		Port:       port,
		MaxPlayers: game.MaxPlayers,
		Transport:  game.Transport,
	}
	r := relay.New(c.relayCfg, spec, c, c.logger)
	go r.Run()
}

// ExpirePending sweeps clients and pending games past their
// timeouts, called by the janitor.
func (c *Coordinator) ExpirePending(now time.Time) (expiredClients, expiredGames []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiredClients = c.clients.Expire(now.Add(-clientInactivityWindow))
	expiredGames = c.games.Expire(now, time.Duration(c.cfg.JoinTimeoutSec)*time.Second)
	return expiredClients, expiredGames
}
