// Package tui is the terminal form served over SSH: seven metric inputs
// pre-filled with defaults and a result view.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pulse-sentinel/internal/domain"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const assessTimeout = 2 * time.Minute

type Assessor interface {
	Assess(ctx context.Context, source string, w domain.WeeklyAverages) (*domain.Assessment, error)
}

type state int

const (
	stateForm state = iota
	stateRunning
	stateResult
)

var labels = [len(domain.MetricNames)]string{
	"Sleep duration (h)",
	"Step count",
	"Resting heart rate (bpm)",
	"Stress level (0-1)",
	"Sleep onset (min)",
	"Daytime heart rate (bpm)",
	"Sleeping heart rate (bpm)",
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Width(28)
	focusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noneStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	minorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	majorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	remedyStyle = lipgloss.NewStyle().PaddingLeft(2)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2)
	factorStyle = lipgloss.NewStyle().Bold(true)
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type assessedMsg struct {
	assessment *domain.Assessment
	err        error
}

type Model struct {
	ctx      context.Context
	assessor Assessor
	user     string

	inputs []textinput.Model
	focus  int
	state  state
	result *domain.Assessment
	err    error

	width  int
	height int
}

func New(ctx context.Context, assessor Assessor, user string) Model {
	defaults := domain.DefaultWeeklyAverages().Vector()
	inputs := make([]textinput.Model, len(defaults))
	for i, v := range defaults {
		in := textinput.New()
		in.Prompt = "> "
		in.CharLimit = 16
		in.Placeholder = strconv.FormatFloat(v, 'f', -1, 64)
		in.SetValue(in.Placeholder)
		inputs[i] = in
	}
	inputs[0].Focus()
	return Model{ctx: ctx, assessor: assessor, user: user, inputs: inputs}
}

func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil
	case assessedMsg:
		m.state = stateResult
		m.result = msg.assessment
		m.err = msg.err
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.state {
		case stateRunning:
			return m, nil
		case stateResult:
			return m.updateResult(msg)
		}
		return m.updateForm(msg)
	}

	if m.state != stateForm {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "tab", "down":
		return m, m.setFocus(m.focus + 1)
	case "shift+tab", "up":
		return m, m.setFocus(m.focus - 1)
	case "enter":
		if m.focus < len(m.inputs)-1 {
			return m, m.setFocus(m.focus + 1)
		}
		return m.submit()
	case "ctrl+r":
		m.reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "enter", "e":
		m.state = stateForm
		m.err = nil
		m.result = nil
		return m, m.setFocus(0)
	}
	return m, nil
}

// setFocus moves focus with wrap-around.
func (m *Model) setFocus(i int) tea.Cmd {
	n := len(m.inputs)
	i = ((i % n) + n) % n
	m.inputs[m.focus].Blur()
	m.focus = i
	return m.inputs[i].Focus()
}

func (m *Model) reset() {
	for i := range m.inputs {
		m.inputs[i].SetValue(m.inputs[i].Placeholder)
	}
	m.err = nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	w, err := m.values()
	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.state = stateRunning
	return m, assessCmd(m.ctx, m.assessor, w)
}

func (m Model) values() (domain.WeeklyAverages, error) {
	values := make([]float64, len(m.inputs))
	for i, in := range m.inputs {
		raw := strings.TrimSpace(in.Value())
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.WeeklyAverages{}, fmt.Errorf("%s: %q is not a number", labels[i], raw)
		}
		values[i] = v
	}
	return domain.WeeklyAveragesFromSlice(values)
}

func assessCmd(ctx context.Context, assessor Assessor, w domain.WeeklyAverages) tea.Cmd {
	return func() tea.Msg {
		reqCtx, cancel := context.WithTimeout(ctx, assessTimeout)
		defer cancel()
		a, err := assessor.Assess(reqCtx, domain.SourceSSH, w)
		return assessedMsg{assessment: a, err: err}
	}
}

func (m Model) View() string {
	var b strings.Builder
	title := "pulse-sentinel · weekly check"
	if m.user != "" {
		title += " · " + m.user
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	switch m.state {
	case stateRunning:
		b.WriteString("Scoring your week...\n")
	case stateResult:
		b.WriteString(m.resultView())
		b.WriteString(helpStyle.Render("enter: edit values · q: quit"))
	default:
		b.WriteString(m.formView())
		b.WriteString(helpStyle.Render("tab/↑↓: move · enter: next/submit · ctrl+r: reset · esc: quit"))
	}
	return b.String() + "\n"
}

func (m Model) formView() string {
	var b strings.Builder
	for i, in := range m.inputs {
		label := labels[i]
		if i == m.focus {
			label = focusStyle.Render(labelStyle.Render(label))
		} else {
			label = labelStyle.Render(label)
		}
		b.WriteString(label)
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) resultView() string {
	if m.err != nil {
		return errorStyle.Render("Assessment failed: "+m.err.Error()) + "\n"
	}
	a := m.result
	if a == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(tierStyle(a.Tier).Render(a.Headline))
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render(fmt.Sprintf("score %.3f · tier %s · model %s", a.Score, a.Tier, a.ModelID)))
	b.WriteString("\n")
	if len(a.Remedies) > 0 {
		b.WriteString("\nSuggestions\n")
		for _, r := range a.Remedies {
			b.WriteString(remedyStyle.Render(factorStyle.Render(r.Factor) + ": " + r.Advice))
			b.WriteString("\n")
		}
	}
	if a.Narrative != "" {
		b.WriteString("\n")
		b.WriteString(a.Narrative)
		b.WriteString("\n")
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func tierStyle(t domain.Tier) lipgloss.Style {
	switch t {
	case domain.TierMajor:
		return majorStyle
	case domain.TierMinor:
		return minorStyle
	default:
		return noneStyle
	}
}
