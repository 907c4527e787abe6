package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factrag/internal/domain"
)

type fakeSearch struct {
	calls      int
	prioritize bool
	k          int
	results    []domain.SearchResult
	err        error
}

func (f *fakeSearch) Search(_ context.Context, _ string, k int, prioritize bool) ([]domain.SearchResult, error) {
	f.calls++
	f.k = k
	f.prioritize = prioritize
	return f.results, f.err
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model)
}

func TestEnterRunsSearch(t *testing.T) {
	fake := &fakeSearch{results: []domain.SearchResult{{
		Passage: domain.Passage{
			SourceID: "rapport.txt",
			Content:  "Le préjudice médian est de 2 050 €. Autre phrase.",
			Metadata: domain.PassageMetadata{HasCurrency: true, HasNumbers: true, QualityScore: 0.8},
		},
		Score: 0.9,
	}}}
	m := sized(t, New(context.Background(), fake, "digest line", 3, true, "fr"))
	m.input.SetValue("préjudice médian")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	next, _ = next.(Model).Update(cmd())
	m = next.(Model)

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, 3, fake.k)
	assert.True(t, fake.prioritize)
	view := m.View()
	assert.Contains(t, view, "rapport.txt#0")
	assert.Contains(t, view, "[currency]")
	assert.Contains(t, view, "[quality high 0.80]")
	assert.Contains(t, view, "digest line")
}

func TestTabTogglesPriorityAndReruns(t *testing.T) {
	fake := &fakeSearch{}
	m := sized(t, New(context.Background(), fake, "", 5, true, "fr"))

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	assert.False(t, m.prioritize)
	assert.Nil(t, cmd)

	m.lastQuery = "délai"
	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	require.NotNil(t, cmd)
	cmd()
	assert.True(t, fake.prioritize)
}

func TestSearchErrorShownInStatus(t *testing.T) {
	fake := &fakeSearch{err: errors.New("store down")}
	m := sized(t, New(context.Background(), fake, "", 5, true, "fr"))
	next, _ := m.Update(resultsMsg{query: "x", err: fake.err})
	m = next.(Model)
	assert.Contains(t, m.View(), "Error: store down")
	assert.Contains(t, m.View(), "No results yet.")
}

func TestHighlightPicksBestSentence(t *testing.T) {
	m := New(context.Background(), &fakeSearch{}, "", 5, true, "fr")
	out := m.highlightBestSentence("La météo était agréable. Le délai moyen est de 173 jours.", "délai moyen")
	assert.Contains(t, out, "La météo était agréable.")
	assert.Contains(t, out, "Le délai moyen est de 173 jours.")
}
