package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pulse-sentinel/internal/domain"

	tea "github.com/charmbracelet/bubbletea"
)

type stubAssessor struct {
	got    domain.WeeklyAverages
	source string
	err    error
	calls  int
}

func (s *stubAssessor) Assess(ctx context.Context, source string, w domain.WeeklyAverages) (*domain.Assessment, error) {
	s.calls++
	s.got = w
	s.source = source
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Assessment{
		Score:    0.5,
		Tier:     domain.TierMinor,
		ModelID:  "m1",
		Headline: domain.TierMinor.Headline(),
		Remedies: []domain.Remedy{{Factor: "Stress level", Advice: "Take breaks."}},
	}, nil
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return out, cmd
}

// submitAll tabs to the last field and presses enter.
func submitAll(t *testing.T, m Model) (Model, tea.Cmd) {
	t.Helper()
	for m.focus < len(m.inputs)-1 {
		m, _ = update(t, m, key(tea.KeyTab))
	}
	return update(t, m, key(tea.KeyEnter))
}

func TestNewPrefillsDefaults(t *testing.T) {
	m := New(context.Background(), &stubAssessor{}, "alice")
	w, err := m.values()
	if err != nil {
		t.Fatalf("defaults should parse: %v", err)
	}
	if w != domain.DefaultWeeklyAverages() {
		t.Fatalf("unexpected defaults: %+v", w)
	}
	if m.focus != 0 || !m.inputs[0].Focused() {
		t.Fatal("first field should be focused")
	}
	view := m.View()
	if !strings.Contains(view, "Sleep duration (h)") || !strings.Contains(view, "alice") {
		t.Fatalf("unexpected view:\n%s", view)
	}
}

func TestFocusWrapsAround(t *testing.T) {
	m := New(context.Background(), &stubAssessor{}, "")
	m, _ = update(t, m, key(tea.KeyShiftTab))
	if m.focus != len(m.inputs)-1 {
		t.Fatalf("expected focus on last field, got %d", m.focus)
	}
	m, _ = update(t, m, key(tea.KeyDown))
	if m.focus != 0 || !m.inputs[0].Focused() || m.inputs[len(m.inputs)-1].Focused() {
		t.Fatalf("expected focus back on first field, got %d", m.focus)
	}
}

func TestEnterAdvancesBeforeSubmitting(t *testing.T) {
	assessor := &stubAssessor{}
	m := New(context.Background(), assessor, "")
	m, _ = update(t, m, key(tea.KeyEnter))
	if m.focus != 1 || m.state != stateForm {
		t.Fatalf("enter on first field should advance, focus=%d state=%d", m.focus, m.state)
	}
	if assessor.calls != 0 {
		t.Fatal("should not submit before the last field")
	}
}

func TestSubmitAssessesAndShowsResult(t *testing.T) {
	assessor := &stubAssessor{}
	m := New(context.Background(), assessor, "")
	m.inputs[1].SetValue("2500")

	m, cmd := submitAll(t, m)
	if m.state != stateRunning || cmd == nil {
		t.Fatalf("expected running state with command, got %d", m.state)
	}
	if !strings.Contains(m.View(), "Scoring your week") {
		t.Fatal("running view missing")
	}

	m, _ = update(t, m, cmd())
	if assessor.calls != 1 || assessor.source != domain.SourceSSH || assessor.got.StepCount != 2500 {
		t.Fatalf("unexpected assessment call: %+v from %s", assessor.got, assessor.source)
	}
	if m.state != stateResult {
		t.Fatalf("expected result state, got %d", m.state)
	}
	view := m.View()
	for _, want := range []string{"Minor anomaly detected.", "score 0.500", "Stress level", "Take breaks."} {
		if !strings.Contains(view, want) {
			t.Fatalf("result view missing %q:\n%s", want, view)
		}
	}

	m, _ = update(t, m, key(tea.KeyEnter))
	if m.state != stateForm || m.inputs[1].Value() != "2500" {
		t.Fatal("returning to the form should keep entered values")
	}
}

func TestSubmitRejectsBadValue(t *testing.T) {
	assessor := &stubAssessor{}
	m := New(context.Background(), assessor, "")
	m.inputs[3].SetValue("high")

	m, cmd := submitAll(t, m)
	if cmd != nil || m.state != stateForm {
		t.Fatal("invalid value should keep the form open")
	}
	if !strings.Contains(m.View(), `Stress level (0-1): "high" is not a number`) {
		t.Fatalf("error not shown:\n%s", m.View())
	}

	m, _ = update(t, m, key(tea.KeyCtrlR))
	if m.err != nil || m.inputs[3].Value() != "0.3" {
		t.Fatal("reset should restore defaults and clear the error")
	}
}

func TestAssessmentFailureShown(t *testing.T) {
	m := New(context.Background(), &stubAssessor{err: errors.New("model unavailable")}, "")
	m, cmd := submitAll(t, m)
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.View(), "Assessment failed: model unavailable") {
		t.Fatalf("failure not shown:\n%s", m.View())
	}
}

func TestQuitKeys(t *testing.T) {
	m := New(context.Background(), &stubAssessor{}, "")
	if _, cmd := update(t, m, key(tea.KeyCtrlC)); cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if _, cmd := update(t, m, key(tea.KeyEsc)); cmd == nil {
		t.Fatal("esc should quit from the form")
	}

	m.state = stateResult
	_, cmd := update(t, m, runes("q"))
	if cmd == nil {
		t.Fatal("q should quit from the result view")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected quit message")
	}
}

func TestTypingEditsFocusedField(t *testing.T) {
	m := New(context.Background(), &stubAssessor{}, "")
	m, _ = update(t, m, runes("5"))
	if got := m.inputs[0].Value(); got != "7.55" {
		t.Fatalf("expected typed rune appended, got %q", got)
	}
}

func TestWindowSize(t *testing.T) {
	m := New(context.Background(), &stubAssessor{}, "")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	if m.width != 100 || m.height != 40 {
		t.Fatalf("unexpected size %dx%d", m.width, m.height)
	}
}
