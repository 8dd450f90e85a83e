package bot

import (
	"context"
	"errors"
	"testing"

	"sniper-scanner/internal/domain"
	"sniper-scanner/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

type fakeSender struct {
	to   []tele.Recipient
	sent []string
	err  error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, what.(string))
	return &tele.Message{}, nil
}

type sniperStub struct {
	latest  *domain.CycleReport
	tracker *tracker.Tracker
}

func (s *sniperStub) Latest() *domain.CycleReport { return s.latest }
func (s *sniperStub) TopCount() int               { return 6 }

func (s *sniperStub) AnalyzeOnDemand(ctx context.Context, symbols []string) domain.CycleReport {
	var ranked []domain.ScoreResult
	for _, sym := range symbols {
		ranked = append(ranked, domain.ScoreResult{Symbol: sym, LongScore: 4})
	}
	return domain.CycleReport{Ranked: ranked}
}

func (s *sniperStub) ReportOutcome(ctx context.Context, id string, outcome tracker.Outcome) error {
	return s.tracker.ReportOutcomeDetailed(ctx, id, outcome)
}

func (s *sniperStub) Summary() tracker.Summary { return s.tracker.Summary() }

func targetReport() domain.CycleReport {
	target := domain.ScoreResult{
		Symbol: "BTCUSDT", LongScore: 8.4, ShortScore: 1.2, Price: 64000, FundingRate: -0.0002,
		Indicators:  domain.IndicatorSet{RSI: 31.2, VolumeRatio: 2.1},
		MatchedLong: []domain.PatternMatch{{Name: "GOLDEN_CROSS_LONG"}},
	}
	ranked := []domain.ScoreResult{target}
	for _, sym := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		ranked = append(ranked, domain.ScoreResult{Symbol: sym + "USDT", LongScore: 3})
	}
	return domain.CycleReport{Ranked: ranked, Target: &target, Threshold: 6.3, AlertID: "abc-123"}
}

func TestFormatReport(t *testing.T) {
	msg := FormatReport(targetReport(), 6)
	assert.Contains(t, msg, "SNIPER TARGET: BTCUSDT LONG")
	assert.Contains(t, msg, "Score: 8.4 (threshold 6.3)")
	assert.Contains(t, msg, "Price: $64000.00")
	assert.Contains(t, msg, "Patterns: GOLDEN_CROSS_LONG")
	assert.Contains(t, msg, "Alert ID: abc-123")
	assert.Contains(t, msg, "Top 6 ranking:")
	assert.Contains(t, msg, "6. EUSDT LONG 3.0")
	assert.NotContains(t, msg, "FUSDT")
	assert.NotContains(t, msg, "FRENZY")
}

func TestFormatReportFrenzy(t *testing.T) {
	msg := FormatReport(domain.CycleReport{Frenzy: true, FrenzyCount: 4}, 6)
	assert.Contains(t, msg, "FRENZY: 4 symbols scoring 8+")
	assert.NotContains(t, msg, "SNIPER TARGET")
}

func TestNotifierSendsOnlyWhenInteresting(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, 42, 0)
	ctx := context.Background()

	require.NoError(t, n.Consume(ctx, domain.CycleReport{Ranked: []domain.ScoreResult{{Symbol: "BTCUSDT"}}}))
	assert.Empty(t, sender.sent)

	require.NoError(t, n.Consume(ctx, targetReport()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, tele.ChatID(42), sender.to[0])

	sender.err = errors.New("network")
	assert.Error(t, n.Consume(ctx, targetReport()))
}

func TestNotifierSkipsTargetHeldByCooldown(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, 42, 0)
	ctx := context.Background()

	held := targetReport()
	held.AlertID = ""
	require.NoError(t, n.Consume(ctx, held))
	assert.Empty(t, sender.sent)

	held.Frenzy, held.FrenzyCount = true, 3
	require.NoError(t, n.Consume(ctx, held))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "FRENZY: 3 symbols")
	assert.NotContains(t, sender.sent[0], "SNIPER TARGET")
	assert.Contains(t, sender.sent[0], "1. BTCUSDT LONG 8.4")
}

func TestStartTelegramBotSkipsWithoutToken(t *testing.T) {
	n, err := StartTelegramBot(context.Background(), "", 0, nil)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestCommands(t *testing.T) {
	trk := tracker.New(nil)
	rec, err := trk.RecordAlert(context.Background(), "BTCUSDT", domain.DirectionLong, 8.4, nil)
	require.NoError(t, err)
	cmds := &commands{sniper: &sniperStub{tracker: trk}}
	ctx := context.Background()

	assert.Contains(t, cmds.ranking(), "No ranking yet")
	assert.Contains(t, cmds.scan(ctx, nil), "Usage")
	assert.Contains(t, cmds.scan(ctx, []string{"ETHUSDT"}), "1. ETHUSDT LONG 4.0")

	assert.Contains(t, cmds.outcome(ctx, []string{rec.ID}), "Usage")
	assert.Contains(t, cmds.outcome(ctx, []string{rec.ID, "hit", "x"}), "Invalid pnl")
	assert.Contains(t, cmds.outcome(ctx, []string{rec.ID, "hit", "NaN"}), "Invalid pnl")
	assert.Contains(t, cmds.outcome(ctx, []string{rec.ID, "hit", "+Inf"}), "Invalid pnl")
	assert.Contains(t, cmds.outcome(ctx, []string{rec.ID, "pending"}), "must be HIT")
	assert.Contains(t, cmds.outcome(ctx, []string{"nope", "HIT"}), "Unknown alert")
	assert.Equal(t, "Alert "+rec.ID+" marked HIT", cmds.outcome(ctx, []string{rec.ID, "hit", "2.5"}))
	assert.Contains(t, cmds.outcome(ctx, []string{rec.ID, "MISS"}), "already resolved")

	assert.Contains(t, cmds.performance(), "Hit rate: 100.0%")
}

func TestFormatSummaryEmpty(t *testing.T) {
	assert.Equal(t, "No alerts recorded yet.", FormatSummary(tracker.Summary{}))
}
