// Package tui is the interactive terminal front end of the assistant.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"paperqa/internal/domain"
	"paperqa/internal/service"
)

// Asker is the TUI-facing subset of the assistant.
type Asker interface {
	Ask(ctx context.Context, query string) service.Result
}

type answerMsg struct {
	result service.Result
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx      context.Context
	asker    Asker
	input    textinput.Model
	viewport viewport.Model
	history  []service.Result
	cursor   int
	summary  string
	status   string
	pending  bool
	ready    bool
}

// New creates a model that sends every submitted query to asker.
func New(ctx context.Context, asker Asker, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about a word, a calculation or the papers"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		asker:    asker,
		input:    ti,
		viewport: viewport.New(0, 0),
		summary:  summary,
		status:   "Ready. Enter sends, up/down browse history.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		return answerMsg{result: m.asker.Ask(m.ctx, q)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case answerMsg:
		m.pending = false
		m.history = append(m.history, msg.result)
		m.cursor = len(m.history) - 1
		m.status = statusLine(msg.result)
		m.viewport.SetContent(m.renderCurrent())
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.input.SetValue("")
			m.status = fmt.Sprintf("Thinking about %q...", q)
			return m, m.ask(q)
		case "up":
			if m.cursor > 0 {
				m.cursor--
				m.viewport.SetContent(m.renderCurrent())
			}
			return m, nil
		case "down":
			if m.cursor < len(m.history)-1 {
				m.cursor++
				m.viewport.SetContent(m.renderCurrent())
			}
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Paper QA")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if len(m.history) == 0 {
		return "No answers yet."
	}
	r := m.history[m.cursor]
	title := fmt.Sprintf("Answer %d/%d  %s", m.cursor+1, len(m.history), r.Query)
	body := r.Render()
	if r.Category == domain.CategoryRAG && r.Err == nil {
		body = highlightBestSentence(body, r.Query)
	}
	return title + "\n\n" + body
}

func statusLine(r service.Result) string {
	s := "Category: " + string(r.Category)
	switch {
	case r.Target != "":
		s += " | Target: " + r.Target
	case r.Expression != "":
		s += " | Expression: " + r.Expression
	}
	if r.Err != nil {
		s += " | failed"
	}
	return s
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the sentence sharing most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	bestIdx, bestScore := 0, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	if bestScore == 0 {
		return text
	}
	best := sentences[bestIdx]
	trimmed := strings.TrimSpace(best)
	return strings.Replace(text, trimmed, highlightStyle.Render(trimmed), 1)
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if len(t) > 2 {
			m[t] = struct{}{}
		}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
