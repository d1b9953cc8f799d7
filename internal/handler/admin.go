// Package handler provides the admin bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"stream-wallet/internal/model"
	"stream-wallet/internal/service"
)

// AdminHandler handles back-office commands.
type AdminHandler struct {
	ledger      *service.LedgerService
	withdrawals *service.WithdrawalService
	payments    *service.PaymentService
	pk          *service.PKBattleService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	ledger *service.LedgerService,
	withdrawals *service.WithdrawalService,
	payments *service.PaymentService,
	pk *service.PKBattleService,
) *AdminHandler {
	return &AdminHandler{
		ledger:      ledger,
		withdrawals: withdrawals,
		payments:    payments,
		pk:          pk,
	}
}

// HandleWallet handles the /wallet command.
// Format: /wallet <account_id>
func (h *AdminHandler) HandleWallet(c tele.Context) error {
	ctx := context.Background()

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /wallet <account_id>")
	}
	accountID, err := parseID(args[0])
	if err != nil {
		return c.Reply(err.Error())
	}

	account, err := h.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return c.Reply(replyFor(err))
	}
	summary, err := h.ledger.WalletSummary(ctx, accountID)
	if err != nil {
		return c.Reply(replyFor(err))
	}

	return c.Reply(formatWallet(account, summary))
}

// HandleCredit handles the /credit command.
// Format: /credit <account_id> <diamonds>
func (h *AdminHandler) HandleCredit(c tele.Context) error {
	return h.credit(c, model.CurrencyDiamond)
}

// HandleStars handles the /stars command.
// Format: /stars <account_id> <stars>
func (h *AdminHandler) HandleStars(c tele.Context) error {
	return h.credit(c, model.CurrencyStar)
}

func (h *AdminHandler) credit(c tele.Context, currency model.Currency) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	accountID, amount, err := parseIDAmount(c.Args())
	if err != nil {
		return c.Reply(err.Error())
	}
	if amount <= 0 {
		return c.Reply("❌ Amount must be greater than 0")
	}

	ref := fmt.Sprintf("admin:%d", sender.ID)
	var entry *model.LedgerEntry
	if currency == model.CurrencyStar {
		entry, err = h.ledger.CreditStars(ctx, accountID, amount, ref)
	} else {
		entry, err = h.ledger.CreditDiamonds(ctx, accountID, amount, ref)
	}
	if err != nil {
		return c.Reply(replyFor(err))
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("account_id", accountID).
		Str("currency", string(currency)).
		Int64("amount", amount).
		Str("operation", "credit").
		Msg("Admin operation executed")

	return c.Reply(fmt.Sprintf(
		"✅ Credited\n\n"+
			"👤 Account: %d\n"+
			"➕ Added: %d %s\n"+
			"💰 Balance: %d",
		accountID, amount, currency, entry.BalanceAfter,
	))
}

// HandleWithdrawals handles the /withdrawals command and lists pending
// requests.
func (h *AdminHandler) HandleWithdrawals(c tele.Context) error {
	ctx := context.Background()

	status := model.WithdrawalPending
	list, err := h.withdrawals.List(ctx, &status, 20)
	if err != nil {
		return c.Reply(replyFor(err))
	}
	if len(list) == 0 {
		return c.Reply("📭 No pending withdrawals")
	}

	var sb strings.Builder
	sb.WriteString("📋 Pending withdrawals\n\n")
	for _, w := range list {
		fmt.Fprintf(&sb, "#%d  account %d  %d %s\n", w.ID, w.AccountID, w.Amount, w.Currency)
	}
	sb.WriteString("\n/approve <id> or /reject <id>")
	return c.Reply(sb.String())
}

// HandleApprove handles the /approve command.
// Format: /approve <withdrawal_id>
func (h *AdminHandler) HandleApprove(c tele.Context) error {
	return h.setWithdrawalStatus(c, model.WithdrawalApproved)
}

// HandleReject handles the /reject command.
// Format: /reject <withdrawal_id>
func (h *AdminHandler) HandleReject(c tele.Context) error {
	return h.setWithdrawalStatus(c, model.WithdrawalRejected)
}

func (h *AdminHandler) setWithdrawalStatus(c tele.Context, status model.WithdrawalStatus) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /approve <withdrawal_id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return c.Reply(err.Error())
	}

	result, err := h.withdrawals.Update(ctx, id, service.WithdrawalUpdate{Status: &status})
	if err != nil {
		return c.Reply(replyFor(err))
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Int64("withdrawal_id", id).
		Str("status", string(status)).
		Int64("debited", result.Debited).
		Str("operation", "withdrawal_status").
		Msg("Admin operation executed")

	msg := fmt.Sprintf("✅ Withdrawal #%d is now %s", id, status)
	if result.Debited > 0 {
		msg += fmt.Sprintf("\n➖ Debited: %d %s", result.Debited, result.Withdrawal.Currency)
		if result.Withdrawal.Payout != nil {
			msg += fmt.Sprintf("\n💵 Payout: %s", result.Withdrawal.Payout.StringFixed(2))
		}
	}
	if result.Clamped {
		msg += "\n⚠️ Balance was short, debit clamped"
	}
	return c.Reply(msg)
}

// HandleReconcile handles the /reconcile command.
// Format: /reconcile <order_id> <status>
func (h *AdminHandler) HandleReconcile(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ Usage: /reconcile <order_id> <SUCCESS|FAILED>")
	}

	result, err := h.payments.ReconcileReported(ctx, args[0], args[1], nil, service.SourceAdmin)
	if err != nil {
		return c.Reply(replyFor(err))
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("order_id", args[0]).
		Str("status", string(result.Payment.Status)).
		Int64("credited", result.Credited).
		Str("operation", "reconcile").
		Msg("Admin operation executed")

	switch {
	case result.Duplicate:
		return c.Reply(fmt.Sprintf("ℹ️ Order %s was already %s", args[0], result.Payment.Status))
	case result.Credited > 0:
		return c.Reply(fmt.Sprintf("✅ Order %s credited %d diamonds", args[0], result.Credited))
	default:
		return c.Reply(fmt.Sprintf("✅ Order %s is now %s", args[0], result.Payment.Status))
	}
}

// HandlePK handles the /pk command.
// Format: /pk <battle_id>
func (h *AdminHandler) HandlePK(c tele.Context) error {
	ctx := context.Background()

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: /pk <battle_id>")
	}
	id, err := parseID(args[0])
	if err != nil {
		return c.Reply(err.Error())
	}

	battle, err := h.pk.Get(ctx, id)
	if err != nil {
		return c.Reply(replyFor(err))
	}
	totals, err := h.pk.EventTotals(ctx, id)
	if err != nil {
		return c.Reply(replyFor(err))
	}

	return c.Reply(formatBattle(battle, totals))
}

// HandlePolicy handles the /policy command. Without arguments it shows the
// withdrawal policies in force.
// Format: /policy [<diamond|star> <minimum> <conversion_rate>]
func (h *AdminHandler) HandlePolicy(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) == 0 {
		return c.Reply(formatPolicies(h.withdrawals.Policies()))
	}

	currency, upd, err := parsePolicyArgs(args)
	if err != nil {
		return c.Reply(err.Error())
	}

	editor := sender.ID
	policy, err := h.withdrawals.UpdatePolicy(ctx, currency, upd, &editor)
	if err != nil {
		return c.Reply(replyFor(err))
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("currency", string(currency)).
		Str("operation", "withdrawal_policy").
		Msg("Admin operation executed")

	return c.Reply("✅ Policy updated\n\n" + formatPolicies([]model.WithdrawalPolicy{*policy}))
}

// parsePolicyArgs parses "<currency> <minimum> <conversion_rate>".
func parsePolicyArgs(args []string) (model.Currency, service.PolicyUpdate, error) {
	usage := errors.New("❌ Usage: /policy <diamond|star> <minimum> <conversion_rate>\nExample: /policy star 500 0.25")
	if len(args) < 3 {
		return "", service.PolicyUpdate{}, usage
	}

	currency := model.Currency(strings.ToLower(args[0]))
	if !currency.Valid() {
		return "", service.PolicyUpdate{}, usage
	}
	minimum, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || minimum < 0 {
		return "", service.PolicyUpdate{}, errors.New("❌ Invalid minimum, expected a non-negative integer")
	}
	rate, err := decimal.NewFromString(args[2])
	if err != nil || rate.IsNegative() {
		return "", service.PolicyUpdate{}, errors.New("❌ Invalid conversion rate, expected a non-negative decimal")
	}

	return currency, service.PolicyUpdate{Minimum: &minimum, ConversionRate: &rate}, nil
}

func formatPolicies(policies []model.WithdrawalPolicy) string {
	var sb strings.Builder
	sb.WriteString("🏦 Withdrawal policy\n")
	for _, p := range policies {
		fmt.Fprintf(&sb, "\n%s: minimum %d, 1 = %s", p.Currency, p.Minimum, p.ConversionRate.String())
		if p.UpdatedBy != nil {
			fmt.Fprintf(&sb, " (set by %d)", *p.UpdatedBy)
		}
	}
	return sb.String()
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("❌ Invalid id, expected a positive number")
	}
	return id, nil
}

// parseIDAmount parses "<id> <amount>" command arguments.
func parseIDAmount(args []string) (int64, int64, error) {
	if len(args) < 2 {
		return 0, 0, errors.New("❌ Usage: /credit <account_id> <amount>\nExample: /credit 42 100")
	}

	id, err := parseID(args[0])
	if err != nil {
		return 0, 0, err
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, errors.New("❌ Invalid amount, expected an integer")
	}

	return id, amount, nil
}

// replyFor turns a service error into a short chat reply.
func replyFor(err error) string {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return "❌ Not found"
	case errors.Is(err, service.ErrInvalidTransition):
		return "❌ Status change not allowed"
	case errors.Is(err, service.ErrAlreadySettled):
		return "❌ Already settled"
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidAmount):
		return "❌ " + err.Error()
	}
	log.Error().Err(err).Msg("Admin command failed")
	return "❌ Operation failed, please try again later"
}

func formatWallet(a *model.Account, s *model.WalletSummary) string {
	name := fmt.Sprintf("%d", a.ID)
	if a.Username != nil && *a.Username != "" {
		name = *a.Username
	}
	return fmt.Sprintf(
		"👤 %s (ID: %d)\n\n"+
			"💎 Diamonds: %d\n"+
			"⭐ Stars: %d\n"+
			"💵 Money: %s\n\n"+
			"🛒 Bought: %d  🎁 Spent: %d  🏦 Withdrawn: %d\n"+
			"🌟 Earned: %d stars, withdrawn %d\n"+
			"💳 Total spent: %s",
		name, a.ID,
		a.Diamonds, a.Stars, a.Money.StringFixed(2),
		s.DiamondsBought, s.DiamondsSpent, s.DiamondsWithdrawn,
		s.StarsEarned, s.StarsWithdrawn,
		s.TotalSpent.StringFixed(2),
	)
}

func formatBattle(b *model.PKBattle, totals []*model.PKTotals) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚔️ PK #%d (%s)\n\n", b.ID, b.Status)
	fmt.Fprintf(&sb, "🔴 %d: %d\n", b.LeftHostID, b.LeftScore)
	fmt.Fprintf(&sb, "🔵 %d: %d\n", b.RightHostID, b.RightScore)
	if b.WinnerID != nil {
		fmt.Fprintf(&sb, "🏆 Winner: %d\n", *b.WinnerID)
	} else if leader := b.Leader(); leader != nil && b.Status == model.PKActive {
		fmt.Fprintf(&sb, "📈 Leading: %d\n", *leader)
	}
	for _, t := range totals {
		fmt.Fprintf(&sb, "🎁 %d received %d from %d gifts\n", t.ReceiverID, t.Amount, t.Events)
	}
	return sb.String()
}
