// Package devserver hosts a self-contained DopeWars backend for local play
// and integration testing. It implements the same REST contract the hosted
// backend speaks, persists runs through runstore, and signs settlement
// packets with a configurable server key.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dopewars-xyz/gameclient/internal/devserver/runstore"
	"github.com/dopewars-xyz/gameclient/pkg/game"
)

// Run boots the development game server using the supplied configuration.
func Run(ctx context.Context, cfg Config, store *runstore.Store) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("zap init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	handler, err := newHandler(cfg, store, logger)
	if err != nil {
		return err
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("game server listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/game/start", handler.handleStart)
	router.GET("/game/state", handler.handleState)
	router.POST("/game/action", handler.handleAction)
	router.POST("/game/settle", handler.handleSettlePrepare)
	router.PATCH("/game/settle", handler.handleSettleAck)
	router.GET("/leaderboard", handler.handleLeaderboard)

	return router
}

type httpHandler struct {
	logger *zap.Logger
	store  *runstore.Store
	cfg    Config
	signer *settlementSigner

	// mu serializes engine rolls and read-modify-write cycles on run state.
	mu     sync.Mutex
	engine *engine
	nonces map[string]nonceEntry
}

type nonceEntry struct {
	nonce     string
	expiresAt time.Time
	expires   string
}

func newHandler(cfg Config, store *runstore.Store, logger *zap.Logger) (*httpHandler, error) {
	signer, err := newSettlementSigner(cfg.SignerKeyHex)
	if err != nil {
		return nil, err
	}
	return &httpHandler{
		logger: logger,
		store:  store,
		cfg:    cfg,
		signer: signer,
		engine: newEngine(rand.New(rand.NewSource(time.Now().UnixNano()))),
		nonces: map[string]nonceEntry{},
	}, nil
}

type startRequest struct {
	PlayerAddress string `json:"playerAddress"`
	Signature     string `json:"signature"`
}

func (handler *httpHandler) handleStart(ctx *gin.Context) {
	var request startRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, failure("expected JSON body"))
		return
	}
	address, err := game.NewWalletAddress(request.PlayerAddress)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, failure("invalid player address"))
		return
	}
	player := address.String()

	if handler.cfg.RequireHandshake {
		if request.Signature == "" {
			nonce := handler.issueNonce(player)
			ctx.JSON(http.StatusOK, gin.H{
				"success":   false,
				"nonce":     nonce.nonce,
				"expiresAt": nonce.expires,
			})
			return
		}
		if err := handler.consumeNonce(player, request.Signature); err != nil {
			ctx.JSON(http.StatusUnauthorized, failure(err.Error()))
			return
		}
	}

	totalIce, err := handler.store.TotalIce(ctx.Request.Context(), player)
	if err != nil {
		handler.logger.Error("total ice lookup failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("storage unavailable"))
		return
	}

	handler.mu.Lock()
	state := handler.engine.newRun(totalIce)
	handler.mu.Unlock()

	encoded, err := json.Marshal(state)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, failure("state encode failed"))
		return
	}
	if _, err := handler.store.CreateRun(ctx.Request.Context(), player, encoded); err != nil {
		handler.logger.Error("run create failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("storage unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "gameState": state})
}

func (handler *httpHandler) issueNonce(player string) nonceEntry {
	handler.mu.Lock()
	defer handler.mu.Unlock()
	expiresAt := time.Now().UTC().Add(handler.cfg.NonceTTL)
	entry := nonceEntry{
		nonce:     uuid.NewString(),
		expiresAt: expiresAt,
		expires:   expiresAt.Format(time.RFC3339),
	}
	handler.nonces[player] = entry
	return entry
}

func (handler *httpHandler) consumeNonce(player string, signature string) error {
	handler.mu.Lock()
	entry, ok := handler.nonces[player]
	delete(handler.nonces, player)
	handler.mu.Unlock()

	if !ok || time.Now().UTC().After(entry.expiresAt) {
		return errors.New("nonce expired, restart the handshake")
	}
	return verifySessionKey(player, entry.nonce, entry.expires, signature)
}

func (handler *httpHandler) handleState(ctx *gin.Context) {
	address, err := game.NewWalletAddress(ctx.Query("playerAddress"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, failure("invalid player address"))
		return
	}

	run, err := handler.store.ActiveRun(ctx.Request.Context(), address.String())
	if err != nil {
		if errors.Is(err, runstore.ErrNoActiveRun) {
			ctx.JSON(http.StatusNotFound, failure("No active game found"))
			return
		}
		handler.logger.Error("run lookup failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("storage unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "gameState": json.RawMessage(run.State)})
}

// actionRequest carries the action parameters flat in the body, next to the
// player address and action name.
type actionRequest struct {
	PlayerAddress string `json:"playerAddress"`
	Action        string `json:"action"`
	Location      int    `json:"location"`
	DrugIndex     int    `json:"drugIndex"`
	Amount        int64  `json:"amount"`
}

// actionParams is the engine's input shape.
type actionParams struct {
	Location  int
	GoodIndex int
	Amount    int64
}

func (handler *httpHandler) handleAction(ctx *gin.Context) {
	var request actionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, failure("expected JSON body"))
		return
	}
	address, err := game.NewWalletAddress(request.PlayerAddress)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, failure("invalid player address"))
		return
	}

	run, err := handler.store.ActiveRun(ctx.Request.Context(), address.String())
	if err != nil {
		if errors.Is(err, runstore.ErrNoActiveRun) {
			ctx.JSON(http.StatusNotFound, failure("No active game found"))
			return
		}
		handler.logger.Error("run lookup failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("storage unavailable"))
		return
	}

	var state runState
	if err := json.Unmarshal(run.State, &state); err != nil {
		handler.logger.Error("state decode failed", zap.String("run", run.RunID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("corrupt run state"))
		return
	}

	params := actionParams{
		Location:  request.Location,
		GoodIndex: request.DrugIndex,
		Amount:    request.Amount,
	}
	handler.mu.Lock()
	description, mustSettle, err := handler.engine.apply(&state, game.ActionName(request.Action), params)
	handler.mu.Unlock()
	if mustSettle {
		ctx.JSON(http.StatusOK, gin.H{"success": false, "mustSettle": true})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusBadRequest, failure(err.Error()))
		return
	}

	encoded, err := json.Marshal(state)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, failure("state encode failed"))
		return
	}
	if err := handler.store.SaveState(ctx.Request.Context(), run.RunID, encoded, runstore.StatusActive); err != nil {
		handler.logger.Error("state save failed", zap.String("run", run.RunID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("storage unavailable"))
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":          true,
		"gameState":        state,
		"eventDescription": description,
	})
}

type settleRequest struct {
	PlayerAddress string `json:"playerAddress"`
}

func (handler *httpHandler) handleSettlePrepare(ctx *gin.Context) {
	var request settleRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, failure("expected JSON body"))
		return
	}
	address, err := game.NewWalletAddress(request.PlayerAddress)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, failure("invalid player address"))
		return
	}
	player := address.String()

	run, err := handler.store.SettleableRun(ctx.Request.Context(), player)
	if err != nil {
		if errors.Is(err, runstore.ErrNoActiveRun) {
			ctx.JSON(http.StatusNotFound, failure("No active game found"))
			return
		}
		handler.logger.Error("run lookup failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("storage unavailable"))
		return
	}

	var state runState
	if err := json.Unmarshal(run.State, &state); err != nil {
		handler.logger.Error("state decode failed", zap.String("run", run.RunID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("corrupt run state"))
		return
	}

	// Repeat prepares return the already-signed terms so a retried
	// settlement keeps the same packet.
	if run.Status == runstore.StatusAwaitingSettlement && run.SettlementID != nil && run.Signature != nil {
		ctx.JSON(http.StatusOK, settlementResponse(run, *run.SettlementID, *run.Signature, state.TotalIce+run.IceAwarded))
		return
	}

	if state.Health > 0 && state.DaysPlayed < game.SettlementFloorDay {
		ctx.JSON(http.StatusBadRequest, failure(errSettleTooEarly.Error()))
		return
	}

	finalNetWorth, iceAwarded, didWin := state.settlementTerms()
	daysPlayed := int64(state.DaysPlayed)
	settlementID := runIDFor(run.RunID, player)
	signature, err := handler.signer.signPacket(player, finalNetWorth, daysPlayed, settlementID)
	if err != nil {
		handler.logger.Error("packet signing failed", zap.String("run", run.RunID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("settlement signing failed"))
		return
	}

	err = handler.store.MarkAwaitingSettlement(ctx.Request.Context(), run.RunID, settlementID,
		finalNetWorth, daysPlayed, signature, iceAwarded, didWin, state.WonAtDay)
	if err != nil {
		handler.logger.Error("settlement mark failed", zap.String("run", run.RunID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("storage unavailable"))
		return
	}

	run.FinalNetWorth = finalNetWorth
	run.DaysPlayed = daysPlayed
	run.IceAwarded = iceAwarded
	run.DidWin = didWin
	run.WonAtDay = state.WonAtDay
	ctx.JSON(http.StatusOK, settlementResponse(run, settlementID, signature, state.TotalIce+iceAwarded))
}

// settlementResponse flattens the signed terms into the prepare envelope.
func settlementResponse(run *runstore.Run, settlementID string, signature string, totalIce int64) gin.H {
	return gin.H{
		"success":       true,
		"runId":         settlementID,
		"finalNetWorth": run.FinalNetWorth,
		"daysPlayed":    run.DaysPlayed,
		"signature":     signature,
		"didWin":        run.DidWin,
		"wonAtDay":      run.WonAtDay,
		"iceAwarded":    run.IceAwarded,
		"totalIce":      totalIce,
	}
}

type ackRequest struct {
	PlayerAddress   string `json:"playerAddress"`
	RunID           string `json:"runId"`
	TransactionHash string `json:"transactionHash"`
}

func (handler *httpHandler) handleSettleAck(ctx *gin.Context) {
	var request ackRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, failure("expected JSON body"))
		return
	}
	if request.RunID == "" || request.TransactionHash == "" {
		ctx.JSON(http.StatusBadRequest, failure("runId and transactionHash are required"))
		return
	}

	if err := handler.store.SettleRun(ctx.Request.Context(), request.RunID, request.TransactionHash); err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			ctx.JSON(http.StatusNotFound, failure("unknown settlement"))
			return
		}
		handler.logger.Error("settle ack failed", zap.String("settlement", request.RunID), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("storage unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

func (handler *httpHandler) handleLeaderboard(ctx *gin.Context) {
	sortBy := ctx.DefaultQuery("sortBy", string(game.LeaderboardByTotalIce))
	if sortBy != string(game.LeaderboardByTotalIce) && sortBy != string(game.LeaderboardByBestNetWorth) {
		ctx.JSON(http.StatusBadRequest, failure("unknown sortBy"))
		return
	}
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		ctx.JSON(http.StatusBadRequest, failure("invalid limit"))
		return
	}
	if limit > handler.cfg.LeaderboardLimit {
		limit = handler.cfg.LeaderboardLimit
	}

	players, err := handler.store.Leaderboard(ctx.Request.Context(), sortBy == string(game.LeaderboardByTotalIce), limit)
	if err != nil {
		handler.logger.Error("leaderboard query failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, failure("storage unavailable"))
		return
	}

	rows := make([]gin.H, 0, len(players))
	for _, player := range players {
		rows = append(rows, gin.H{
			"player_address": player.PlayerAddress,
			"total_ice":      player.TotalIce,
			"best_net_worth": player.BestNetWorth,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "leaderboard": rows})
}

func failure(message string) gin.H {
	return gin.H{"success": false, "error": message}
}
