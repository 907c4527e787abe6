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

	"factrag/internal/chunker"
	"factrag/internal/domain"
	"factrag/internal/metadata"
)

// SearchPort is the TUI-facing subset of the RAG service.
type SearchPort interface {
	Search(ctx context.Context, text string, k int, prioritizeMetadata bool) ([]domain.SearchResult, error)
}

// resultsMsg carries the outcome of an asynchronous search.
type resultsMsg struct {
	query   string
	results []domain.SearchResult
	err     error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx        context.Context
	service    SearchPort
	segmenter  *chunker.Segmenter
	input      textinput.Model
	viewport   viewport.Model
	results    []domain.SearchResult
	digest     string
	status     string
	cursor     int
	topK       int
	prioritize bool
	ready      bool
	lastQuery  string
}

// New creates a new TUI model. digest is shown under the title.
func New(ctx context.Context, service SearchPort, digest string, topK int, prioritize bool, locale string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:        ctx,
		service:    service,
		segmenter:  chunker.NewSegmenter(locale),
		input:      ti,
		viewport:   vp,
		digest:     digest,
		topK:       max(1, topK),
		prioritize: prioritize,
		status:     "Loaded. Type to search, Tab toggles metadata priority.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) search(q string) tea.Cmd {
	ctx, svc, k, prioritize := m.ctx, m.service, m.topK, m.prioritize
	return func() tea.Msg {
		res, err := svc.Search(ctx, q, k, prioritize)
		return resultsMsg{query: q, results: res, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+digest, status, spacer
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case resultsMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q (metadata priority %s)", len(msg.results), msg.query, onOff(m.prioritize))
			m.results = msg.results
			m.lastQuery = msg.query
		}
		m.cursor = 0
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if q := strings.TrimSpace(m.input.Value()); q != "" {
				m.status = "Searching..."
				return m, m.search(q)
			}
		case "tab":
			m.prioritize = !m.prioritize
			m.status = "Metadata priority " + onOff(m.prioritize)
			if m.lastQuery != "" {
				return m, m.search(m.lastQuery)
			}
			return m, nil
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Fact Search")
	digest := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(firstLine(m.digest))
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + digest + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  %s#%d  score=%.3f  distance=%.3f",
		m.cursor+1, len(m.results), r.Passage.SourceID, r.Passage.Index, r.Score, r.Distance)
	body := m.highlightBestSentence(r.Passage.Content, m.lastQuery)
	return title + "\n" + badges(r.Passage.Metadata) + "\n\n" + body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	badgeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	unicodeWordRe  = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)
)

// badges lists the fact flags and quality band of a passage.
func badges(md domain.PassageMetadata) string {
	var tags []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{md.HasNumbers, "numbers"},
		{md.HasCurrency, "currency"},
		{md.HasDates, "dates"},
		{md.HasPercentages, "percent"},
		{md.HasExplicitKeyValue, "key:value"},
	} {
		if f.on {
			tags = append(tags, "["+f.name+"]")
		}
	}
	contentType := md.ContentType
	if contentType == "" {
		contentType = domain.ContentGeneral
	}
	tags = append(tags, fmt.Sprintf("[%s]", contentType), fmt.Sprintf("[quality %s %.2f]", metadata.Band(md.QualityScore), md.QualityScore))
	return badgeStyle.Render(strings.Join(tags, " "))
}

func (m Model) highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := m.segmenter.Segment(text)
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
	for t := range toTokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
