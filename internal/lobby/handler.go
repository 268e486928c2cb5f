package lobby

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mozzwald/fujinet-midimaze-connect/internal/config"
	"github.com/mozzwald/fujinet-midimaze-connect/internal/transport"
)

// Handler serves the lobby's GET-only JSON endpoints on top of a
// Coordinator.
type Handler struct {
	coord  *Coordinator
	cfg    config.Config
	logger *slog.Logger
}

// NewHandler builds a Handler. cfg supplies defaulting values
// (max_players_default) the wire layer applies before calling into
// the coordinator.
func NewHandler(coord *Coordinator, cfg config.Config, logger *slog.Logger) *Handler {
	return &Handler{coord: coord, cfg: cfg, logger: logger}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/hello", h.handleHello)
	mux.HandleFunc("/list", h.handleList)
	mux.HandleFunc("/create", h.handleCreate)
	mux.HandleFunc("/join", h.handleJoin)
	mux.HandleFunc("/leave", h.handleLeave)
	mux.HandleFunc("/wait", h.handleWait)
	mux.HandleFunc("/ping", h.handlePing)
	mux.HandleFunc("/", h.handleUnknown)
}

// rejectNonGET closes the connection without writing any response for
// any method other than GET. Plain net/http always writes a status
// line even for an empty body, so the only way to honor this exactly
// is to hijack the connection and close it ourselves.
func rejectNonGET(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return false
	}
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return true
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return true
	}
	rw.Flush()
	conn.Close()
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code string) {
	writeJSON(w, errorResponse{OK: false, Error: code})
}

// writeClientErr translates a Coordinator error shared by every
// authenticated endpoint — an unknown client_id is always bad_client —
// into its wire code.
func writeClientErr(w http.ResponseWriter, err error) {
	switch err {
	case ErrBadClient:
		writeError(w, "bad_client")
	default:
		writeError(w, "internal")
	}
}

func (h *Handler) handleUnknown(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}
	writeError(w, "unknown")
}

// --- /hello ---

type helloResponse struct {
	OK       bool   `json:"ok"`
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
}

func (h *Handler) handleHello(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}
	name := r.URL.Query().Get("name")
	client, err := h.coord.Hello(name)
	if err != nil {
		switch err {
		case ErrInvalidName:
			writeError(w, "invalid_name")
		case ErrServerFull:
			writeError(w, "server_full")
		default:
			writeError(w, "internal")
		}
		return
	}
	writeJSON(w, helloResponse{OK: true, ClientID: client.ID, Name: client.Name})
}

// --- /list ---

type gameSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Players   int    `json:"players"`
	Max       int    `json:"max"`
	Active    bool   `json:"active"`
	Transport string `json:"transport"`
}

type listResponse struct {
	OK    bool          `json:"ok"`
	Games []gameSummary `json:"games"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}
	games, err := h.coord.ListGames(r.URL.Query().Get("client_id"))
	if err != nil {
		writeClientErr(w, err)
		return
	}
	summaries := make([]gameSummary, 0, len(games))
	for _, g := range games {
		summaries = append(summaries, gameSummary{
			ID:        g.ID,
			Name:      g.Name,
			Players:   g.PlayerCount(),
			Max:       g.MaxPlayers,
			Active:    g.Active,
			Transport: string(g.Transport),
		})
	}
	writeJSON(w, listResponse{OK: true, Games: summaries})
}

// --- /create ---

type createResponse struct {
	OK        bool   `json:"ok"`
	GameID    string `json:"game_id"`
	Status    string `json:"status"`
	Transport string `json:"transport"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}
	q := r.URL.Query()
	clientID := q.Get("client_id")

	name := q.Get("name")
	if name == "" {
		name = "Game"
	}

	maxPlayers := h.cfg.MaxPlayersDefault
	if v := q.Get("max_players"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= config.MaxPlayersLimit {
			maxPlayers = n
		}
	}

	tr, err := transport.Parse(q.Get("transport"))
	if err != nil {
		tr = transport.TCP
	}

	game, err := h.coord.CreateGame(clientID, name, maxPlayers, tr)
	if err != nil {
		switch err {
		case ErrBadClient:
			writeError(w, "bad_client")
		case ErrMaxGames:
			writeError(w, "max_games")
		default:
			writeError(w, "internal")
		}
		return
	}
	writeJSON(w, createResponse{OK: true, GameID: game.ID, Status: "waiting", Transport: string(game.Transport)})
}

// --- /join ---

type joinResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}
	q := r.URL.Query()
	_, err := h.coord.JoinGame(q.Get("client_id"), q.Get("game_id"))
	if err != nil {
		switch err {
		case ErrBadClient:
			writeError(w, "bad_client")
		case ErrNotFound:
			writeError(w, "not_found")
		case ErrGameFull:
			writeError(w, "full")
		default:
			writeError(w, "internal")
		}
		return
	}
	// Join always reports "waiting" here: if this join just filled the
	// game and activation then failed for lack of a free port, that
	// failure surfaces later through /wait, not through this response.
	writeJSON(w, joinResponse{OK: true, Status: "waiting"})
}

// --- /leave ---

type okResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}
	q := r.URL.Query()
	err := h.coord.LeaveGame(q.Get("client_id"), q.Get("game_id"))
	if err != nil {
		switch err {
		case ErrBadClient:
			writeError(w, "bad_client")
		case ErrNotFound:
			writeError(w, "not_found")
		default:
			writeError(w, "internal")
		}
		return
	}
	writeJSON(w, okResponse{OK: true})
}

// --- /wait ---

// waitStartResponse is returned once a pending relay start notification
// is consumed: `{cmd:"start", host, port, transport, token}`.
type waitStartResponse struct {
	OK        bool   `json:"ok"`
	Cmd       string `json:"cmd"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Transport string `json:"transport"`
	Token     string `json:"token"`
}

// waitStatusResponse is returned while still waiting:
// `{status:"waiting", players, max}`.
type waitStatusResponse struct {
	OK      bool   `json:"ok"`
	Status  string `json:"status"`
	Players int    `json:"players"`
	Max     int    `json:"max"`
}

func (h *Handler) handleWait(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}
	q := r.URL.Query()
	res, err := h.coord.Wait(q.Get("client_id"), q.Get("game_id"))
	if err != nil {
		switch err {
		case ErrBadClient:
			writeError(w, "bad_client")
		case ErrNotFound:
			writeError(w, "not_found")
		default:
			writeError(w, "internal")
		}
		return
	}

	if res.Status == "ready" {
		writeJSON(w, waitStartResponse{
			OK:        true,
			Cmd:       "start",
			Host:      res.Host,
			Port:      res.Port,
			Transport: string(res.Transport),
			Token:     res.Token,
		})
		return
	}
	writeJSON(w, waitStatusResponse{OK: true, Status: "waiting", Players: res.Players, Max: res.Max})
}

// --- /ping ---

func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	if rejectNonGET(w, r) {
		return
	}
	if err := h.coord.Ping(r.URL.Query().Get("client_id")); err != nil {
		writeClientErr(w, err)
		return
	}
	writeJSON(w, okResponse{OK: true})
}
