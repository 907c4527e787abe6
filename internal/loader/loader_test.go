package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factrag/internal/domain"
)

// mockRunner is a test double for CommandRunner.
type mockRunner struct {
	output []byte
	err    error
	args   []string
}

func (m *mockRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	m.args = args
	return m.output, m.err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadText(t *testing.T) {
	dir := t.TempDir()
	// "é" written decomposed is normalized to its composed form.
	path := writeFile(t, dir, "a.txt", "Dure\u0301e moyenne: 173 jours")

	doc, err := New(nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Source)
	assert.Equal(t, "Durée moyenne: 173 jours", doc.Content)
}

func TestLoadMarkdownKeptRaw(t *testing.T) {
	path := writeFile(t, t.TempDir(), "guide.md", "# Titre\n\nTexte.")
	doc, err := New(nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "# Titre\n\nTexte.", doc.Content)
}

func TestLoadJSONFlattens(t *testing.T) {
	path := writeFile(t, t.TempDir(), "aos.json", `[
		{"titre": "Marché public", "montant": 2050.5, "lots": ["A", "B"], "acheteur": {"ville": "Lyon"}},
		{"titre": "Travaux", "actif": true, "vide": null}
	]`)

	doc, err := New(nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t,
		"acheteur.ville: Lyon\nlots[0]: A\nlots[1]: B\nmontant: 2050.5\ntitre: Marché public\n\nactif: true\ntitre: Travaux",
		doc.Content)
}

func TestLoadJSONInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.json", `{"a":`)
	_, err := New(nil).Load(context.Background(), path)
	assert.Error(t, err)
}

func TestLoadPDFUsesRunner(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rapport.pdf", "%PDF")
	runner := &mockRunner{output: []byte("Page un\fPage deux")}

	doc, err := NewWithRunner(runner, nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Page un\nPage deux", doc.Content)
	assert.Equal(t, []string{"-enc", "UTF-8", path, "-"}, runner.args)
}

func TestLoadPDFRunnerError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rapport.pdf", "%PDF")
	_, err := NewWithRunner(&mockRunner{err: ErrPDFToolNotFound}, nil).Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrPDFToolNotFound)
}

func TestLoadUnsupported(t *testing.T) {
	path := writeFile(t, t.TempDir(), "image.png", "x")
	_, err := New(nil).Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "a")
	b := writeFile(t, dir, "sub/deep/b.MD", "b")
	writeFile(t, dir, "sub/skip.png", "x")
	c := writeFile(t, dir, "c.json", "{}")

	got, err := Expand([]string{dir, filepath.Join(dir, "*.txt")})
	require.NoError(t, err)
	assert.Equal(t, []string{a, c, b}, got)
}

func TestExpandMissingPath(t *testing.T) {
	_, err := Expand([]string{filepath.Join(t.TempDir(), "absent.txt")})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWalkSkipsBrokenAndEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.txt", "Texte utile.")
	writeFile(t, dir, "empty.txt", "   ")
	writeFile(t, dir, "bad.json", "{")

	docs, err := New(nil).Walk(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Texte utile.", docs[0].Content)
}

func TestWalkNothingLoadable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.txt", "")
	_, err := New(nil).Walk(context.Background(), []string{dir})
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
}
