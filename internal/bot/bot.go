// Package bot provides the Telegram admin bot initialization and handler
// registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"stream-wallet/internal/config"
	"stream-wallet/internal/handler"
	"stream-wallet/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot          *tele.Bot
	cfg          *config.Config
	adminHandler *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config      *config.Config
	Ledger      *service.LedgerService
	Withdrawals *service.WithdrawalService
	Payments    *service.PaymentService
	PK          *service.PKBattleService
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Bot handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,
		adminHandler: handler.NewAdminHandler(
			deps.Ledger,
			deps.Withdrawals,
			deps.Payments,
			deps.PK,
		),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(AdminMiddleware(b.cfg))
}

// registerHandlers registers all command handlers. Every command is
// admin-only.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/wallet", b.adminHandler.HandleWallet)
	b.bot.Handle("/credit", b.adminHandler.HandleCredit)
	b.bot.Handle("/stars", b.adminHandler.HandleStars)
	b.bot.Handle("/withdrawals", b.adminHandler.HandleWithdrawals)
	b.bot.Handle("/approve", b.adminHandler.HandleApprove)
	b.bot.Handle("/reject", b.adminHandler.HandleReject)
	b.bot.Handle("/reconcile", b.adminHandler.HandleReconcile)
	b.bot.Handle("/pk", b.adminHandler.HandlePK)
	b.bot.Handle("/policy", b.adminHandler.HandlePolicy)
}

func (b *Bot) handleStart(c tele.Context) error {
	return c.Reply(helpText)
}

const helpText = "🛠 Wallet admin\n\n" +
	"/wallet <account_id>\n" +
	"/credit <account_id> <diamonds>\n" +
	"/stars <account_id> <stars>\n" +
	"/withdrawals\n" +
	"/approve <withdrawal_id>\n" +
	"/reject <withdrawal_id>\n" +
	"/reconcile <order_id> <SUCCESS|FAILED>\n" +
	"/pk <battle_id>\n" +
	"/policy [<diamond|star> <minimum> <rate>]"

// Start starts the bot polling. It blocks until Stop is called.
func (b *Bot) Start() {
	log.Info().Msg("Starting admin bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping admin bot...")
	b.bot.Stop()
}
