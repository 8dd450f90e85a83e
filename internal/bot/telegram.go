package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sniper-scanner/internal/domain"
	"sniper-scanner/internal/ranking"
	"sniper-scanner/internal/tracker"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// SniperAPI is what chat commands need from the sniper service.
type SniperAPI interface {
	Latest() *domain.CycleReport
	TopCount() int
	AnalyzeOnDemand(ctx context.Context, symbols []string) domain.CycleReport
	ReportOutcome(ctx context.Context, id string, outcome tracker.Outcome) error
	Summary() tracker.Summary
}

// Sender is satisfied by *tele.Bot.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

var newBot = tele.NewBot

// TelegramNotifier pushes alerted targets and frenzies to one chat. A target
// held back by the alert cooldown carries no alert ID and is not pushed.
type TelegramNotifier struct {
	sender Sender
	chat   tele.Recipient
	top    int
}

func NewTelegramNotifier(sender Sender, chatID int64, top int) *TelegramNotifier {
	if top <= 0 {
		top = ranking.DefaultTopCount
	}
	return &TelegramNotifier{sender: sender, chat: tele.ChatID(chatID), top: top}
}

func (n *TelegramNotifier) Consume(ctx context.Context, report domain.CycleReport) error {
	if report.AlertID == "" {
		report.Target = nil
	}
	if report.Target == nil && !report.Frenzy {
		return nil
	}
	if _, err := n.sender.Send(n.chat, FormatReport(report, n.top)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// StartTelegramBot registers chat commands and starts long polling until ctx
// is done. It returns a nil notifier when no token is configured.
func StartTelegramBot(ctx context.Context, token string, chatID int64, sniper SniperAPI) (*TelegramNotifier, error) {
	if token == "" {
		log.Info().Msg("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil, nil
	}
	b, err := newBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	cmds := &commands{sniper: sniper}
	b.Handle("/ping", func(c tele.Context) error { return c.Send("pong") })
	b.Handle("/help", func(c tele.Context) error { return c.Send(helpText) })
	b.Handle("/start", func(c tele.Context) error { return c.Send(helpText) })
	b.Handle("/ranking", func(c tele.Context) error { return c.Send(cmds.ranking()) })
	b.Handle("/scan", func(c tele.Context) error { return c.Send(cmds.scan(ctx, c.Args())) })
	b.Handle("/outcome", func(c tele.Context) error { return c.Send(cmds.outcome(ctx, c.Args())) })
	b.Handle("/performance", func(c tele.Context) error { return c.Send(cmds.performance()) })

	go b.Start()
	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	log.Info().Msg("Telegram bot started")

	if chatID == 0 {
		log.Warn().Msg("TELEGRAM_CHAT_ID not set, cycle notifications disabled")
		return nil, nil
	}
	return NewTelegramNotifier(b, chatID, sniper.TopCount()), nil
}

const helpText = `Sniper scanner commands:
/ranking - latest top ranking
/scan BTCUSDT ETHUSDT - score symbols now
/outcome <alert-id> <HIT|MISS|STOPPED> [pnl] - report an alert result
/performance - alert accuracy summary
/ping - liveness check`

type commands struct {
	sniper SniperAPI
}

func (c *commands) ranking() string {
	report := c.sniper.Latest()
	if report == nil {
		return "No ranking yet, the first scan is still running."
	}
	return FormatReport(*report, c.sniper.TopCount())
}

func (c *commands) scan(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /scan BTCUSDT [ETHUSDT ...]"
	}
	report := c.sniper.AnalyzeOnDemand(ctx, args)
	if len(report.Ranked) == 0 {
		return fmt.Sprintf("No symbol could be scored (%d skipped).", report.Stats.TotalSkipped())
	}
	return FormatReport(report, len(report.Ranked))
}

func (c *commands) outcome(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "Usage: /outcome <alert-id> <HIT|MISS|STOPPED> [pnl]"
	}
	outcome := tracker.Outcome{Status: domain.AlertStatus(strings.ToUpper(args[1]))}
	if len(args) > 2 {
		pnl, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Sprintf("Invalid pnl %q", args[2])
		}
		outcome.ProfitLoss = &pnl
	}

	err := c.sniper.ReportOutcome(ctx, args[0], outcome)
	switch {
	case err == nil:
		return fmt.Sprintf("Alert %s marked %s", args[0], outcome.Status)
	case errors.Is(err, domain.ErrUnknownAlert):
		return fmt.Sprintf("Unknown alert %s", args[0])
	case errors.Is(err, domain.ErrAlreadyResolved):
		return fmt.Sprintf("Alert %s is already resolved", args[0])
	case errors.Is(err, domain.ErrInvalidStatus):
		return "Status must be HIT, MISS or STOPPED"
	case errors.Is(err, domain.ErrInvalidOutcome):
		return fmt.Sprintf("Invalid pnl %q", args[2])
	default:
		return fmt.Sprintf("Error reporting outcome: %v", err)
	}
}

func (c *commands) performance() string {
	return FormatSummary(c.sniper.Summary())
}

// FormatReport renders the top of a cycle report as a chat message.
func FormatReport(report domain.CycleReport, top int) string {
	var b strings.Builder
	if report.Target != nil {
		t := report.Target
		dir := t.BestDirection()
		fmt.Fprintf(&b, "🎯 SNIPER TARGET: %s %s\n", t.Symbol, dir)
		fmt.Fprintf(&b, "Score: %.1f (threshold %.1f)\n", t.BestScore(), report.Threshold)
		fmt.Fprintf(&b, "Price: %s | Funding: %.4f%%\n", formatPrice(t.Price), t.FundingRate*100)
		fmt.Fprintf(&b, "RSI: %.1f | Volume x%.2f\n", t.Indicators.RSI, t.Indicators.VolumeRatio)
		if names := t.PatternNames(dir); len(names) > 0 {
			fmt.Fprintf(&b, "Patterns: %s\n", strings.Join(names, ", "))
		}
		if report.AlertID != "" {
			fmt.Fprintf(&b, "Alert ID: %s\n", report.AlertID)
		}
		b.WriteString("\n")
	}
	if report.Frenzy {
		fmt.Fprintf(&b, "🔥 FRENZY: %d symbols scoring %.0f+\n\n", report.FrenzyCount, ranking.FrenzyScore)
	}

	ranked := ranking.Top(report.Ranked, top)
	fmt.Fprintf(&b, "Top %d ranking:\n", len(ranked))
	for i, r := range ranked {
		fmt.Fprintf(&b, "%d. %s %s %.1f (L %.1f / S %.1f)\n",
			i+1, r.Symbol, r.BestDirection(), r.BestScore(), r.LongScore, r.ShortScore)
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatSummary(s tracker.Summary) string {
	if s.TotalAlerts == 0 {
		return "No alerts recorded yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Alerts: %d (%d resolved)\n", s.TotalAlerts, s.Completed)
	fmt.Fprintf(&b, "Hit rate: %.1f%%", s.HitRate*100)
	if s.BestAsset != nil {
		fmt.Fprintf(&b, "\nBest asset: %s %.1f%%", s.BestAsset.Symbol, s.BestAsset.HitRate*100)
	}
	if s.WorstAsset != nil {
		fmt.Fprintf(&b, "\nWorst asset: %s %.1f%%", s.WorstAsset.Symbol, s.WorstAsset.HitRate*100)
	}
	if s.BestPattern != nil {
		fmt.Fprintf(&b, "\nBest pattern: %s %.1f%%", s.BestPattern.Pattern, s.BestPattern.HitRate*100)
	}
	if s.WorstPattern != nil {
		fmt.Fprintf(&b, "\nWorst pattern: %s %.1f%%", s.WorstPattern.Pattern, s.WorstPattern.HitRate*100)
	}
	return b.String()
}

func formatPrice(p float64) string {
	switch {
	case p >= 1:
		return fmt.Sprintf("$%.2f", p)
	case p >= 0.01:
		return fmt.Sprintf("$%.4f", p)
	default:
		return fmt.Sprintf("$%.8f", p)
	}
}
