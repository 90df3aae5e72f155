package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arach/2048ish/config"
	"github.com/arach/2048ish/game"
	"github.com/arach/2048ish/scraper/htmlboard"
	"github.com/arach/2048ish/strategy"
)

const maxBodyBytes = 1 << 20

type InfoResponse struct {
	APIVersion string   `json:"apiversion"`
	Author     string   `json:"author"`
	Version    string   `json:"version"`
	Strategy   string   `json:"strategy"`
	Strategies []string `json:"strategies"`
}

// MoveRequest carries a board either as a JSON matrix or as a grid literal
// ("2 4 . . | ..."). Strategy and Seed override the server profile.
type MoveRequest struct {
	Grid      game.Grid       `json:"grid,omitempty"`
	Board     string          `json:"board,omitempty"`
	Score     uint64          `json:"score"`
	Strategy  string          `json:"strategy,omitempty"`
	Seed      int64           `json:"seed,omitempty"`
	TimeoutMs int             `json:"timeout_ms,omitempty"`
	Move      *game.Direction `json:"move,omitempty"`
}

func (r *MoveRequest) state() (*game.GameState, error) {
	grid := r.Grid
	if r.Board != "" {
		g, err := game.ParseGrid(r.Board)
		if err != nil {
			return nil, err
		}
		grid = g
	}
	if grid == nil {
		return nil, errors.New("request has no grid or board")
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	return &game.GameState{Grid: grid, Score: r.Score}, nil
}

type MoveResponse struct {
	Move        game.Direction `json:"move"`
	Strategy    string         `json:"strategy"`
	Explanation string         `json:"explanation"`
	ElapsedMs   int64          `json:"elapsed_ms"`
	Search      any            `json:"search,omitempty"`
}

type ExplainResponse struct {
	Move        game.Direction `json:"move"`
	Strategy    string         `json:"strategy"`
	Explanation string         `json:"explanation"`
}

type EvaluateResponse struct {
	Strategy string `json:"strategy"`
	strategy.MoveEvaluations
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	profile     config.Profile
	moveTimeout time.Duration
	logger      *slog.Logger
}

func NewServer(profile config.Profile, moveTimeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{profile: profile, moveTimeout: moveTimeout, logger: logger}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/move", s.handleMove)
	mux.HandleFunc("/move/html", s.handleMoveHTML)
	mux.HandleFunc("/explain", s.handleExplain)
	mux.HandleFunc("/evaluate", s.handleEvaluate)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// newStrategy builds a fresh strategy per request; instances are not safe
// for concurrent use.
func (s *Server) newStrategy(name string, seed int64) (strategy.Strategy, error) {
	p := s.profile
	if name != "" {
		p.Strategy = name
	}
	if seed == 0 {
		seed = p.Seed
	}
	cfg, err := p.StrategyConfig(seed, s.logger)
	if err != nil {
		return nil, err
	}
	return strategy.New(cfg)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	names := make([]string, len(strategy.Kinds))
	for i, k := range strategy.Kinds {
		names[i] = string(k)
	}
	writeJSON(w, http.StatusOK, InfoResponse{
		APIVersion: "1",
		Author:     "2048ish",
		Version:    "1.0.0",
		Strategy:   s.profile.Strategy,
		Strategies: names,
	})
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (*MoveRequest, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return nil, false
	}
	var req MoveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return nil, false
	}
	return &req, true
}

// decide runs the strategy under the request's time budget.
func (s *Server) decide(ctx context.Context, req *MoveRequest, state *game.GameState) (MoveResponse, error) {
	start := time.Now()
	strat, err := s.newStrategy(req.Strategy, req.Seed)
	if err != nil {
		return MoveResponse{}, err
	}

	timeout := s.moveTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	move := strat.NextMove(ctx, state)
	resp := MoveResponse{
		Move:        move,
		Strategy:    strat.Name(),
		Explanation: strat.ExplainMove(move, state),
	}
	if rep, ok := strat.(strategy.Reporter); ok {
		resp.Search = rep.LastSearch()
	}
	resp.ElapsedMs = time.Since(start).Milliseconds()

	s.logger.Info("move",
		"strategy", resp.Strategy,
		"grid", state.Grid,
		"move", move,
		"elapsed_ms", resp.ElapsedMs,
	)
	return resp, nil
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	state, err := req.state()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.decide(r.Context(), req, state)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMoveHTML takes a saved page of the web front end as the body.
// The strategy and seed come from query parameters.
func (s *Server) handleMoveHTML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	state, err := htmlboard.Parse(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, htmlboard.ErrNoBoard) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	req := &MoveRequest{Strategy: r.URL.Query().Get("strategy")}
	resp, err := s.decide(r.Context(), req, state)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	state, err := req.state()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	strat, err := s.newStrategy(req.Strategy, req.Seed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var move game.Direction
	if req.Move != nil {
		move = *req.Move
	} else {
		move = strat.NextMove(r.Context(), state)
	}
	writeJSON(w, http.StatusOK, ExplainResponse{
		Move:        move,
		Strategy:    strat.Name(),
		Explanation: strat.ExplainMove(move, state),
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	state, err := req.state()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	strat, err := s.newStrategy(req.Strategy, req.Seed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, EvaluateResponse{
		Strategy:        strat.Name(),
		MoveEvaluations: strat.EvaluateAllMoves(state),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func main() {
	fs := flag.NewFlagSet("botserver", flag.ExitOnError)
	listen := fs.String("listen", getEnvOrDefault("LISTEN", "127.0.0.1:8000"), "Address to listen on")
	configPath := fs.String("config", getEnvOrDefault("G2048_CONFIG", ""), "Profile file (yaml/json)")
	strategyName := fs.String("strategy", getEnvOrDefault("STRATEGY", ""), "Override the profile strategy")
	moveTimeout := fs.Duration("move-timeout", 2*time.Second, "Time budget per move")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "flag parse: %v\n", err)
		os.Exit(2)
	}

	profile, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *strategyName != "" {
		profile.Strategy = *strategyName
		if err := profile.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	logger, err := profile.Logger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	server := NewServer(profile, *moveTimeout, logger)
	srv := &http.Server{
		Addr:              *listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("move server listening", "addr", "http://"+*listen, "strategy", profile.Strategy)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
