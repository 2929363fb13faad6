package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"pulse-sentinel/internal/domain"

	tele "gopkg.in/telebot.v3"
)

const assessTimeout = 2 * time.Minute

type Assessor interface {
	Assess(ctx context.Context, source string, w domain.WeeklyAverages) (*domain.Assessment, error)
}

var newBot = tele.NewBot

// StartTelegramBot registers the chat commands and starts long polling in the
// background. The bot stops when ctx is cancelled. An empty token disables it.
func StartTelegramBot(ctx context.Context, token string, assessor Assessor) error {
	if token == "" {
		slog.Info("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	b, err := newBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/defaults", func(c tele.Context) error {
		return c.Send(DefaultsMessage())
	})

	b.Handle("/assess", func(c tele.Context) error {
		w, err := ParseAssessArgs(c.Args())
		if err != nil {
			return c.Send(err.Error() + "\n\n" + usage)
		}
		reqCtx, cancel := context.WithTimeout(ctx, assessTimeout)
		defer cancel()
		a, err := assessor.Assess(reqCtx, domain.SourceTelegram, w)
		if err != nil {
			slog.Error("telegram assessment failed", "chat_id", c.Chat().ID, "error", err)
			return c.Send("Could not assess these values: " + err.Error())
		}
		return c.Send(FormatAssessment(a))
	})

	slog.Info("Telegram bot started")
	go b.Start()
	go func() {
		<-ctx.Done()
		b.Stop()
	}()
	return nil
}

var usage = "Usage: /assess sleep steps resting_hr stress onset day_hr sleep_hr\n" +
	"Example: /assess " + formatValues(domain.DefaultWeeklyAverages(), " ")

// ParseAssessArgs reads seven metric values in canonical order. Values may be
// separated by spaces or commas.
func ParseAssessArgs(args []string) (domain.WeeklyAverages, error) {
	fields := strings.FieldsFunc(strings.Join(args, " "), func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	if len(fields) != len(domain.MetricNames) {
		return domain.WeeklyAverages{}, fmt.Errorf("expected %d values, got %d", len(domain.MetricNames), len(fields))
	}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return domain.WeeklyAverages{}, fmt.Errorf("%s: %q is not a number", domain.MetricNames[i], f)
		}
		values[i] = v
	}
	w, err := domain.WeeklyAveragesFromSlice(values)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return domain.WeeklyAverages{}, errors.New(strings.TrimPrefix(err.Error(), domain.ErrInvalidInput.Error()+": "))
		}
		return domain.WeeklyAverages{}, err
	}
	return w, nil
}

func DefaultsMessage() string {
	d := domain.DefaultWeeklyAverages().Vector()
	var sb strings.Builder
	sb.WriteString("Default weekly averages:\n")
	for i, name := range domain.MetricNames {
		fmt.Fprintf(&sb, "%s: %s\n", name, strconv.FormatFloat(d[i], 'f', -1, 64))
	}
	sb.WriteString("\nTry: /assess ")
	sb.WriteString(formatValues(domain.DefaultWeeklyAverages(), " "))
	return sb.String()
}

// FormatAssessment renders an assessment as a plain chat message.
func FormatAssessment(a *domain.Assessment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\nScore: %.3f (tier: %s)\n", a.Headline, a.Score, a.Tier)
	if len(a.Remedies) > 0 {
		sb.WriteString("\nSuggestions:\n")
		for _, r := range a.Remedies {
			fmt.Fprintf(&sb, "- %s: %s\n", r.Factor, r.Advice)
		}
	}
	if a.Narrative != "" {
		sb.WriteString("\n")
		sb.WriteString(a.Narrative)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatValues(w domain.WeeklyAverages, sep string) string {
	v := w.Vector()
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'f', -1, 64)
	}
	return strings.Join(parts, sep)
}
