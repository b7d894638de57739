package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"callbot/internal/domain"
	"callbot/internal/service"
)

// AssistantPort is the TUI-facing subset of the assistant.
type AssistantPort interface {
	Respond(ctx context.Context, sessionID, text string) (service.Reply, error)
	Profile(sessionID string) domain.UserProfile
}

const turnTimeout = 2 * time.Minute

type line struct {
	speaker domain.Speaker
	text    string
}

// replyMsg carries the outcome of an assistant call back into Update.
type replyMsg struct {
	reply service.Reply
	err   error
}

// Model is the Bubble Tea model for the chat console.
type Model struct {
	assistant AssistantPort
	sessionID string
	input     textinput.Model
	viewport  viewport.Model
	lines     []line
	summary   string
	status    string
	profile   domain.UserProfile
	context   string
	lastQuery string
	pending   bool
	ended     bool
	ready     bool
}

// New creates a chat console for one session. greeting, when set, is shown
// as the bot's opening line.
func New(assistant AssistantPort, sessionID, summary, greeting string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Say something and press Enter (\"exit\" hangs up)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	m := Model{
		assistant: assistant,
		sessionID: sessionID,
		input:     ti,
		viewport:  vp,
		summary:   summary,
		status:    "Connected.",
	}
	if strings.TrimSpace(greeting) != "" {
		m.lines = append(m.lines, line{speaker: domain.SpeakerBot, text: greeting})
	}
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and reply events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 3 + 1 + ih + 1 // header, summary, profile; status; spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case replyMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.lines = append(m.lines, line{speaker: domain.SpeakerBot, text: msg.reply.Response})
		m.context = ""
		if len(msg.reply.Contexts) > 0 {
			m.context = msg.reply.Contexts[0]
		}
		m.profile = m.assistant.Profile(m.sessionID)
		m.refresh()
		if msg.reply.Ended {
			m.ended = true
			m.status = "Call ended."
			return m, tea.Quit
		}
		m.status = fmt.Sprintf("%d contexts used", len(msg.reply.Contexts))
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.Type {
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.pending {
				return m, nil
			}
			m.input.Reset()
			m.lines = append(m.lines, line{speaker: domain.SpeakerUser, text: text})
			m.lastQuery = text
			m.pending = true
			m.status = "Thinking..."
			m.refresh()
			return m, m.respond(text)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) respond(text string) tea.Cmd {
	assistant, id := m.assistant, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()
		reply, err := assistant.Respond(ctx, id, text)
		return replyMsg{reply: reply, err: err}
	}
}

// View renders the console layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Callbot")
	summary := dimStyle.Render(m.summary)
	profile := dimStyle.Render(renderProfile(m.profile))
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + summary + "\n" + profile + "\n" + transcript + "\n" + input + "\n" + status
}

// Ended reports whether the caller hung up.
func (m Model) Ended() bool { return m.ended }

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.lines) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			b.WriteString("\n")
		}
		if l.speaker == domain.SpeakerUser {
			b.WriteString(userStyle.Render("You: "))
		} else {
			b.WriteString(botStyle.Render("Bot: "))
		}
		b.WriteString(l.text)
	}
	if m.context != "" {
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("From the knowledge base:"))
		b.WriteString("\n")
		b.WriteString(highlightBestSentence(m.context, m.lastQuery))
	}
	return b.String()
}

func renderProfile(p domain.UserProfile) string {
	field := func(v string) string {
		if v == "" {
			return "-"
		}
		return v
	}
	return fmt.Sprintf("Name: %s  Contact: %s  Time: %s", field(p.Name), field(p.Contact), field(p.PreferredTime))
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe         = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the sentence sharing the most words with
// query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
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
