package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipes/internal/rules"
	"recipes/internal/scrape/sources"
)

// writeConfig writes a sqlite config into a temp dir and returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`log:
  level: error
database:
  kind: sqlite
  dsn: "file:%s"
http:
  rate_per_second: 0
%s`, filepath.Join(dir, "recipes.db"), extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// kitchen serves a one-recipe site.
func kitchen(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/soups", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<a class="recipe" href="/r/1">Borscht</a><a class="recipe" href="/r/2">Blank</a>`))
	})
	mux.HandleFunc("/r/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>Borscht</h1></body></html>`))
	})
	mux.HandleFunc("/r/2", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>no title</p></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func kitchenModule(url string) rules.Source {
	return rules.Source{
		Name: "Test kitchen",
		URL:  url,
		Links: rules.LinkRules{
			Selectors: []string{"a.recipe"},
			Pages:     []rules.LinkPage{{URL: "/soups", CategoryCode: "SOUPS"}},
		},
		Parsing: rules.ParsingRules{Title: rules.Selector[string]("h1")},
	}
}

func execute(t *testing.T, modules []rules.Source, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a := &app{stdout: &stdout, stderr: &stderr, modules: modules}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func decodeResults(t *testing.T, out string) []map[string]any {
	t.Helper()
	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results), out)
	return results
}

func TestMigrateAndSources(t *testing.T) {
	cfg := writeConfig(t, "")

	out, _, err := execute(t, sources.All(), "migrate", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready")

	// Idempotent.
	_, _, err = execute(t, sources.All(), "migrate", "--config", cfg)
	require.NoError(t, err)

	out, _, err = execute(t, sources.All(), "sources", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Eda ru")
	assert.Contains(t, out, "Povarenok by")
	assert.NotContains(t, out, "yes")
}

func TestRegister(t *testing.T) {
	cfg := writeConfig(t, "")
	_, _, err := execute(t, sources.All(), "migrate", "--config", cfg)
	require.NoError(t, err)

	out, _, err := execute(t, sources.All(), "register", "Eda ru", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `registered "Eda ru"`)
	assert.Contains(t, out, "https://eda.ru")

	out, _, err = execute(t, sources.All(), "sources", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "yes")

	_, _, err = execute(t, sources.All(), "register", "Nope", "--config", cfg)
	assert.ErrorContains(t, err, "unknown source")

	_, _, err = execute(t, sources.All(), "register", "--config", cfg)
	assert.Error(t, err)
}

func TestCollect_RegisteredSourcesOnly(t *testing.T) {
	srv := kitchen(t)
	modules := []rules.Source{kitchenModule(srv.URL)}
	cfg := writeConfig(t, "")

	_, _, err := execute(t, modules, "migrate", "--config", cfg)
	require.NoError(t, err)

	out, _, err := execute(t, modules, "collect", "--config", cfg)
	require.NoError(t, err)
	assert.Empty(t, decodeResults(t, out))

	_, _, err = execute(t, modules, "register", "Test kitchen", "--config", cfg)
	require.NoError(t, err)

	out, _, err = execute(t, modules, "collect", "--config", cfg)
	require.NoError(t, err)
	results := decodeResults(t, out)
	require.Len(t, results, 1)
	assert.Equal(t, "completed", results[0]["outcome"])
	tally := results[0]["tally"].(map[string]any)
	assert.EqualValues(t, 1, tally["recipes_collected"])
	assert.EqualValues(t, 1, tally["recipes_saved"])
	assert.EqualValues(t, 0, tally["exc_number"])

	// Second run finds nothing new.
	out, _, err = execute(t, modules, "collect", "--config", cfg)
	require.NoError(t, err)
	results = decodeResults(t, out)
	require.Len(t, results, 1)
	assert.EqualValues(t, 0, results[0]["tally"].(map[string]any)["recipes_saved"])
	assert.EqualValues(t, 1, results[0]["duplicates"])
}

func TestCollect_DryRunPrintsRecords(t *testing.T) {
	srv := kitchen(t)
	modules := []rules.Source{kitchenModule(srv.URL)}
	cfg := writeConfig(t, "")

	// No migrate: dry-run never opens the database.
	out, _, err := execute(t, modules, "collect", "--dry-run", "--source", "Test kitchen", "--config", cfg)
	require.NoError(t, err)

	results := decodeResults(t, out)
	require.Len(t, results, 1)
	records, ok := results[0]["records"].([]any)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "Borscht", records[0].(map[string]any)["title"])
}

func TestCollect_UnknownSource(t *testing.T) {
	cfg := writeConfig(t, "")
	_, _, err := execute(t, nil, "collect", "--dry-run", "--source", "ghost", "--config", cfg)
	assert.ErrorContains(t, err, "unknown source")
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := writeConfig(t, "metrics:\n  backend: carrier-pigeon\n")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"migrate", "--config", cfg}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "metrics.backend")
}

func TestRun_MissingConfigFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"sources", "--config", filepath.Join(t.TempDir(), "nope.yaml")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
}
