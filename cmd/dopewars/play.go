package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dopewars-xyz/gameclient/internal/backendhttp"
	"github.com/dopewars-xyz/gameclient/internal/ethwallet"
	"github.com/dopewars-xyz/gameclient/pkg/game"
)

func newPlayCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play a run from the terminal",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPlay(ctx, cfg)
		},
	}
}

// zapOperationLogger forwards session operation callbacks to zap.
type zapOperationLogger struct {
	logger *zap.Logger
}

func (adapter *zapOperationLogger) LogOperation(_ context.Context, entry game.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.Player.IsZero() {
		fields = append(fields, zap.String("player", entry.Player.String()))
	}
	if entry.Action != "" {
		fields = append(fields, zap.String("action", string(entry.Action)))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("game operation failed", fields...)
		return
	}
	adapter.logger.Debug("game operation", fields...)
}

func runPlay(ctx context.Context, cfg *runtimeConfig) error {
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return fmt.Errorf("a player private key is required (PRIVATE_KEY or --%s)", flagPrivateKey)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	backend, err := backendhttp.NewClient(cfg.APIBaseURL, backendhttp.WithLogger(logger))
	if err != nil {
		return err
	}
	provider, err := ethwallet.NewProvider(
		cfg.RPCURL,
		cfg.PrivateKey,
		common.HexToAddress(cfg.ContractAddress),
		ethwallet.WithLogger(logger),
		ethwallet.WithApproval(promptApproval),
	)
	if err != nil {
		return err
	}

	session, err := game.NewSession(backend, provider,
		game.WithOperationLogger(&zapOperationLogger{logger: logger}),
	)
	if err != nil {
		return err
	}

	if err := session.ConnectWallet(ctx); err != nil {
		return err
	}
	address, _ := session.WalletAddress()
	fmt.Printf("Connected as %s\n", address)

	if err := session.StartSession(ctx); err != nil {
		return err
	}
	printState(session)

	return commandLoop(ctx, session)
}

func promptApproval(packet game.SettlementPacket) bool {
	fmt.Printf("Settle run %s for $%d over %d days? [y/N] ", packet.RunID, packet.FinalNetWorth, packet.DaysPlayed)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func commandLoop(ctx context.Context, session *game.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println(`Commands: status, market, buy <good> <amt>, sell <good> <amt>, travel <city>,
end, hustle, stash, ice, deposit <amt>, withdraw <amt>, pay <amt>, coat <yes|no>,
gun, fight, flee, settle, board, quit`)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(fields) == 0 {
			continue
		}

		command := strings.ToLower(fields[0])
		if command == "quit" || command == "exit" {
			return nil
		}
		done, err := dispatchCommand(ctx, session, command, fields[1:])
		if err != nil {
			if message, _, ok := session.CurrentError(); ok {
				fmt.Printf("! %s\n", message)
			} else {
				fmt.Printf("! %v\n", err)
			}
			if errors.Is(err, game.ErrMustSettle) {
				fmt.Println("Day limit reached. Run `settle` to close out your run.")
			}
			continue
		}
		if done {
			return nil
		}
	}
}

func dispatchCommand(ctx context.Context, session *game.Session, command string, args []string) (bool, error) {
	var (
		event string
		err   error
	)
	switch command {
	case "status":
		printState(session)
		return false, nil
	case "market":
		printMarket(session)
		return false, nil
	case "buy", "sell":
		goodIndex, amount, parseErr := parseTradeArgs(session, args)
		if parseErr != nil {
			return false, parseErr
		}
		if command == "buy" {
			err = session.Buy(ctx, goodIndex, amount)
		} else {
			err = session.Sell(ctx, goodIndex, amount)
		}
	case "travel":
		location, parseErr := parseLocationArg(args)
		if parseErr != nil {
			return false, parseErr
		}
		event, err = session.TravelTo(ctx, location)
	case "end":
		event, err = session.EndDay(ctx)
	case "hustle":
		event, err = session.Hustle(ctx)
	case "stash":
		event, err = session.FindStash(ctx)
	case "ice":
		event, err = session.ClaimDailyIce(ctx)
	case "deposit", "withdraw", "pay":
		amount, parseErr := parseAmountArg(args)
		if parseErr != nil {
			return false, parseErr
		}
		switch command {
		case "deposit":
			event, err = session.DepositBank(ctx, amount)
		case "withdraw":
			event, err = session.WithdrawBank(ctx, amount)
		default:
			event, err = session.PayLoan(ctx, amount)
		}
	case "coat":
		if len(args) == 1 && strings.EqualFold(args[0], "yes") {
			event, err = session.AcceptCoatOffer(ctx)
		} else {
			event, err = session.DeclineCoatOffer(ctx)
		}
	case "gun":
		event, err = session.BuyGun(ctx)
	case "fight":
		event, err = session.FightCop(ctx)
	case "flee":
		event, err = session.RunFromCop(ctx)
	case "settle":
		return settleAndFinish(ctx, session)
	case "board":
		return false, printLeaderboard(ctx, session, game.LeaderboardByTotalIce, 10)
	default:
		return false, fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return false, err
	}

	if event != "" {
		fmt.Println(event)
		if game.IsDeathEvent(event) {
			fmt.Println("Your run is over. Run `settle` to record it on-chain.")
		}
	}
	printState(session)
	return false, nil
}

func settleAndFinish(ctx context.Context, session *game.Session) (bool, error) {
	if state, ok := session.State(); ok && !settleAllowed(state) {
		fmt.Printf("Settling opens on day %d. Survive a little longer.\n", game.SettlementFloorDay)
		return false, nil
	}
	err := session.Settle(ctx, func(packet game.SettlementPacket) {
		if packet.DidWin {
			fmt.Printf("You won on day %d! ", packet.WonAtDay)
		}
		fmt.Printf("Final net worth $%d over %d days. ICE awarded: %d (lifetime %d).\n",
			packet.FinalNetWorth, packet.DaysPlayed, packet.IceAwarded, packet.TotalIce)
	})
	if err != nil {
		return false, err
	}
	fmt.Println("Run settled. Start the client again to play another run.")
	return true, nil
}

// settleAllowed mirrors the server's floor: early settlement opens on
// SettlementFloorDay, immediately on death or a win.
func settleAllowed(state game.StateSnapshot) bool {
	player := state.Player
	return player.DaysPlayed >= game.SettlementFloorDay || player.Health <= 0 || player.WonAtDay > 0
}

func parseTradeArgs(session *game.Session, args []string) (int, int64, error) {
	if len(args) != 2 {
		return 0, 0, errors.New("usage: buy|sell <good> <amount|max>")
	}
	goodIndex, err := resolveGood(args[0])
	if err != nil {
		return 0, 0, err
	}
	if strings.EqualFold(args[1], "max") {
		return goodIndex, session.MaxBuy(goodIndex), nil
	}
	if strings.EqualFold(args[1], "all") {
		return goodIndex, session.MaxSell(goodIndex), nil
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad amount %q", args[1])
	}
	return goodIndex, amount, nil
}

func parseAmountArg(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("usage: deposit|withdraw|pay <amount>")
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad amount %q", args[0])
	}
	return amount, nil
}

func parseLocationArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, errors.New("usage: travel <city>")
	}
	name := strings.ToLower(strings.Join(args, " "))
	for index, location := range game.LocationNames {
		if strings.ToLower(location) == name {
			return index, nil
		}
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("unknown city %q", name)
	}
	return index, nil
}

func resolveGood(raw string) (int, error) {
	for index, name := range game.GoodNames {
		if strings.EqualFold(name, raw) {
			return index, nil
		}
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("unknown good %q", raw)
	}
	return index, nil
}

func printState(session *game.Session) {
	state, ok := session.State()
	if !ok {
		fmt.Println("No active run.")
		return
	}
	player := state.Player
	fmt.Printf("Day %d/%d | %s | Cash $%d | Bank $%d | Debt $%d | Health %d | ICE %d\n",
		player.DaysPlayed, game.DayLimit, game.LocationNames[player.Location],
		player.Cash, player.BankBalance, player.Debt, player.Health, state.TotalIce)
	fmt.Printf("Net worth $%d of $%d goal | Coat %d/%d units",
		state.NetWorth(), player.NetWorthGoal, totalUnits(state), player.TrenchcoatCapacity)
	if player.HasGun {
		fmt.Print(" | armed")
	}
	fmt.Println()
	if player.CoatOfferPending {
		fmt.Println("A coat upgrade is on offer: coat yes | coat no")
	}
	if player.CopEncounterPending {
		fmt.Println("A cop is closing in: fight | flee")
	}
}

func printMarket(session *game.Session) {
	for _, line := range session.Inventory() {
		fmt.Printf("%-8s $%-6d held %d\n", line.Name, line.Price, line.Amount)
	}
}

func totalUnits(state game.StateSnapshot) int64 {
	var total int64
	for _, held := range state.Inventory {
		total += held
	}
	return total
}

func printLeaderboard(ctx context.Context, session *game.Session, sortBy game.LeaderboardSort, limit int) error {
	rows, err := session.Leaderboard(ctx, sortBy, limit)
	if err != nil {
		return err
	}
	for rank, row := range rows {
		fmt.Printf("%2d. %s  ICE %-5d  best $%d\n", rank+1, row.Player, row.TotalIce, row.BestNetWorth)
	}
	if len(rows) == 0 {
		fmt.Println("Leaderboard is empty.")
	}
	return nil
}
