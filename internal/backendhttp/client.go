// Package backendhttp implements the game backend contract over the DopeWars
// REST API. The client owns wire encoding only; session semantics live in the
// game package.
package backendhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dopewars-xyz/gameclient/pkg/game"
)

const (
	pathStart       = "/game/start"
	pathState       = "/game/state"
	pathAction      = "/game/action"
	pathSettle      = "/game/settle"
	pathLeaderboard = "/leaderboard"

	defaultTimeout = 30 * time.Second

	// sessionKeyMessageFormat is the exact string a wallet signs during the
	// start handshake. The server verifies the recovered signer against the
	// player address.
	sessionKeyMessageFormat = "DopeWars Session Key\nNonce: %s\nExpires: %s"
)

// ErrBadStatus indicates a non-success HTTP status with no decodable error
// payload.
var ErrBadStatus = errors.New("unexpected response status")

// Client talks to a DopeWars backend over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client instance.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// WithLogger wires a structured logger for request diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// NewClient builds a backend client rooted at baseURL.
func NewClient(baseURL string, options ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("backendhttp: base URL is required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("backendhttp: invalid base URL: %w", err)
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		if option != nil {
			option(client)
		}
	}
	return client, nil
}

type startRequest struct {
	PlayerAddress string `json:"playerAddress"`
	Signature     string `json:"signature,omitempty"`
}

type startResponse struct {
	Success   bool   `json:"success"`
	Nonce     string `json:"nonce,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	Error     string `json:"error,omitempty"`
}

// StartRun begins a game run. When the server answers the first request with
// a nonce instead of a started run, the client signs the session key message
// through the wallet and repeats the request with the signature attached.
// Servers without the handshake succeed on the first round trip.
func (client *Client) StartRun(ctx context.Context, signer game.Wallet) error {
	player := signer.Address().String()

	var first startResponse
	if err := client.postJSON(ctx, pathStart, startRequest{PlayerAddress: player}, &first); err != nil {
		return err
	}
	if first.Success {
		return nil
	}
	if first.Nonce == "" {
		return serverError(first.Error, "start rejected")
	}

	message := fmt.Sprintf(sessionKeyMessageFormat, first.Nonce, first.ExpiresAt)
	signature, err := signer.SignMessage(ctx, message)
	if err != nil {
		return fmt.Errorf("sign session key: %w", err)
	}
	client.logger.Debug("completing start handshake", zap.String("player", player))

	var second startResponse
	if err := client.postJSON(ctx, pathStart, startRequest{PlayerAddress: player, Signature: signature}, &second); err != nil {
		return err
	}
	if !second.Success {
		return serverError(second.Error, "start rejected")
	}
	return nil
}

type gameStateDTO struct {
	Cash                 int64                 `json:"cash"`
	Debt                 int64                 `json:"debt"`
	BankBalance          int64                 `json:"bankBalance"`
	TrenchcoatCapacity   int64                 `json:"trenchcoatCapacity"`
	Health               int64                 `json:"health"`
	HasGun               bool                  `json:"hasGun"`
	Location             int                   `json:"location"`
	DaysPlayed           int                   `json:"daysPlayed"`
	LastEventDescription string                `json:"lastEventDescription"`
	NetWorthGoal         int64                 `json:"netWorthGoal"`
	CurrentNetWorth      int64                 `json:"currentNetWorth"`
	CoatOfferPending     bool                  `json:"coatOfferPending"`
	CopEncounterPending  bool                  `json:"copEncounterPending"`
	WonAtDay             int                   `json:"wonAtDay"`
	Inventory            [game.GoodCount]int64 `json:"inventory"`
	Prices               [game.GoodCount]int64 `json:"prices"`
	TotalIce             int64                 `json:"totalIce"`
}

func (dto gameStateDTO) snapshot() game.StateSnapshot {
	return game.StateSnapshot{
		Player: game.PlayerSnapshot{
			Cash:                 dto.Cash,
			Debt:                 dto.Debt,
			BankBalance:          dto.BankBalance,
			TrenchcoatCapacity:   dto.TrenchcoatCapacity,
			Health:               dto.Health,
			HasGun:               dto.HasGun,
			Location:             dto.Location,
			DaysPlayed:           dto.DaysPlayed,
			LastEventDescription: dto.LastEventDescription,
			NetWorthGoal:         dto.NetWorthGoal,
			CurrentNetWorth:      dto.CurrentNetWorth,
			CoatOfferPending:     dto.CoatOfferPending,
			CopEncounterPending:  dto.CopEncounterPending,
			WonAtDay:             dto.WonAtDay,
		},
		Inventory: dto.Inventory,
		Prices:    dto.Prices,
		TotalIce:  dto.TotalIce,
	}
}

type stateResponse struct {
	Success   bool          `json:"success"`
	GameState *gameStateDTO `json:"gameState"`
	Error     string        `json:"error,omitempty"`
}

// FetchState returns the authoritative server snapshot. A missing or inactive
// run maps to game.ErrNoActiveRun so the session can fail closed.
func (client *Client) FetchState(ctx context.Context, player game.WalletAddress) (game.StateSnapshot, error) {
	query := url.Values{"playerAddress": []string{player.String()}}
	var response stateResponse
	if err := client.getJSON(ctx, pathState, query, &response); err != nil {
		return game.StateSnapshot{}, err
	}
	if !response.Success || response.GameState == nil {
		return game.StateSnapshot{}, game.ErrNoActiveRun
	}
	return response.GameState.snapshot(), nil
}

// actionRequest spreads the action parameters at the top level of the body.
// Only the keys the action needs are emitted; travelTo always carries
// location, including index zero.
type actionRequest struct {
	PlayerAddress string `json:"playerAddress"`
	Action        string `json:"action"`
	Location      *int   `json:"location,omitempty"`
	DrugIndex     *int   `json:"drugIndex,omitempty"`
	Amount        *int64 `json:"amount,omitempty"`
}

type actionResponse struct {
	Success          bool          `json:"success"`
	GameState        *gameStateDTO `json:"gameState"`
	EventDescription string        `json:"eventDescription,omitempty"`
	MustSettle       bool          `json:"mustSettle,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// SubmitAction dispatches a game action. A must-settle answer is returned as
// a result, not an error.
func (client *Client) SubmitAction(ctx context.Context, player game.WalletAddress, action game.ActionName, params game.ActionParams) (game.ActionResult, error) {
	request := actionRequest{
		PlayerAddress: player.String(),
		Action:        string(action),
	}
	location, drugIndex, amount := params.Location, params.GoodIndex, params.Amount
	switch action {
	case game.ActionTravelTo:
		request.Location = &location
	case game.ActionBuy, game.ActionSell:
		request.DrugIndex = &drugIndex
		request.Amount = &amount
	case game.ActionDepositBank, game.ActionWithdrawBank, game.ActionPayLoan:
		request.Amount = &amount
	}
	var response actionResponse
	if err := client.postJSON(ctx, pathAction, request, &response); err != nil {
		return game.ActionResult{}, err
	}
	if response.MustSettle {
		return game.ActionResult{MustSettle: true, EventDescription: response.EventDescription}, nil
	}
	if !response.Success {
		return game.ActionResult{}, serverError(response.Error, "action rejected")
	}

	result := game.ActionResult{EventDescription: response.EventDescription}
	if response.GameState != nil {
		snapshot := response.GameState.snapshot()
		result.State = &snapshot
	}
	return result, nil
}

type settleRequest struct {
	PlayerAddress string `json:"playerAddress"`
}

// settleResponse is the flat prepare envelope: the signed packet fields sit
// next to the success flag, not under a nested key.
type settleResponse struct {
	Success       bool   `json:"success"`
	RunID         string `json:"runId"`
	FinalNetWorth int64  `json:"finalNetWorth"`
	DaysPlayed    int64  `json:"daysPlayed"`
	Signature     string `json:"signature"`
	DidWin        bool   `json:"didWin"`
	WonAtDay      int    `json:"wonAtDay"`
	IceAwarded    int64  `json:"iceAwarded"`
	TotalIce      int64  `json:"totalIce"`
	Error         string `json:"error,omitempty"`
}

// PrepareSettlement asks the server to close the run and produce the signed
// settlement packet for the on-chain call.
func (client *Client) PrepareSettlement(ctx context.Context, player game.WalletAddress) (game.SettlementPacket, error) {
	var response settleResponse
	if err := client.postJSON(ctx, pathSettle, settleRequest{PlayerAddress: player.String()}, &response); err != nil {
		return game.SettlementPacket{}, err
	}
	if !response.Success {
		return game.SettlementPacket{}, serverError(response.Error, "settlement rejected")
	}
	return game.SettlementPacket{
		RunID:         response.RunID,
		FinalNetWorth: response.FinalNetWorth,
		DaysPlayed:    response.DaysPlayed,
		Signature:     response.Signature,
		DidWin:        response.DidWin,
		WonAtDay:      response.WonAtDay,
		IceAwarded:    response.IceAwarded,
		TotalIce:      response.TotalIce,
	}, nil
}

type ackRequest struct {
	PlayerAddress   string `json:"playerAddress"`
	RunID           string `json:"runId"`
	TransactionHash string `json:"transactionHash"`
}

type ackResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AcknowledgeSettlement records the settlement transaction hash server-side.
func (client *Client) AcknowledgeSettlement(ctx context.Context, ack game.SettlementAck) error {
	request := ackRequest{
		PlayerAddress:   ack.Player.String(),
		RunID:           ack.RunID,
		TransactionHash: ack.TransactionHash.String(),
	}
	var response ackResponse
	if err := client.sendJSON(ctx, http.MethodPatch, pathSettle, nil, request, &response); err != nil {
		return err
	}
	if !response.Success {
		return serverError(response.Error, "acknowledgment rejected")
	}
	return nil
}

// leaderboardRowDTO tolerates the address field names different backend
// versions have shipped.
type leaderboardRowDTO struct {
	PlayerAddress string `json:"player_address"`
	WalletAddress string `json:"wallet_address"`
	Address       string `json:"address"`
	BestNetWorth  int64  `json:"best_net_worth"`
	TotalIce      int64  `json:"total_ice"`
}

func (dto leaderboardRowDTO) playerAddress() string {
	if dto.PlayerAddress != "" {
		return dto.PlayerAddress
	}
	if dto.WalletAddress != "" {
		return dto.WalletAddress
	}
	return dto.Address
}

type leaderboardResponse struct {
	Success bool                `json:"success"`
	Rows    []leaderboardRowDTO `json:"leaderboard"`
	Error   string              `json:"error,omitempty"`
}

// Leaderboard fetches aggregate rows. Rows with malformed addresses are
// skipped rather than failing the whole page.
func (client *Client) Leaderboard(ctx context.Context, sortBy game.LeaderboardSort, limit int) ([]game.LeaderboardRow, error) {
	query := url.Values{"sortBy": []string{string(sortBy)}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var response leaderboardResponse
	if err := client.getJSON(ctx, pathLeaderboard, query, &response); err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, serverError(response.Error, "leaderboard rejected")
	}

	rows := make([]game.LeaderboardRow, 0, len(response.Rows))
	for _, dto := range response.Rows {
		address, err := game.NewWalletAddress(dto.playerAddress())
		if err != nil {
			client.logger.Warn("skipping leaderboard row", zap.Error(err))
			continue
		}
		rows = append(rows, game.LeaderboardRow{
			Player:       address,
			BestNetWorth: dto.BestNetWorth,
			TotalIce:     dto.TotalIce,
		})
	}
	return rows, nil
}

func (client *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return client.sendJSON(ctx, http.MethodGet, path, query, nil, out)
}

func (client *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	return client.sendJSON(ctx, http.MethodPost, path, nil, in, out)
}

func (client *Client) sendJSON(ctx context.Context, method string, path string, query url.Values, in any, out any) error {
	endpoint := client.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		// Rejections still carry the response envelope; let the caller map
		// success:false instead of losing the server message.
		if out != nil && len(payload) > 0 && json.Unmarshal(payload, out) == nil {
			return nil
		}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &envelope) == nil && envelope.Error != "" {
			return fmt.Errorf("%w: %d: %s", ErrBadStatus, response.StatusCode, envelope.Error)
		}
		return fmt.Errorf("%w: %d", ErrBadStatus, response.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func serverError(message string, fallback string) error {
	if strings.TrimSpace(message) == "" {
		message = fallback
	}
	return errors.New(message)
}
