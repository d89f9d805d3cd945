package runner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentGolden(t *testing.T) {
	res := &Result{
		Variables: []string{"temp", "pressure", "wind"},
		Parents: map[string][]string{
			"temp":     {"pressure", "wind"},
			"pressure": {},
			"wind":     {"temp"},
		},
		Runtime: 1500 * time.Millisecond,
	}

	data, err := res.Document().Encode()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "result_document", data)
}

func TestDocumentKeepsColumnOrder(t *testing.T) {
	doc := &Document{
		Variables: []string{"zeta", "alpha", "mid"},
		Parents:   map[string][]string{"zeta": {"alpha"}},
		Runtime:   0.25,
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t,
		`{"variables":{"zeta":{"parents":["alpha"]},"alpha":{"parents":[]},"mid":{"parents":[]}},"runtime":0.25}`,
		string(data))
}

func TestDocumentDoesNotEscapeNames(t *testing.T) {
	doc := &Document{Variables: []string{"a<b", "c&d"}}

	data, err := doc.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"a<b"`)
	assert.Contains(t, string(data), `"c&d"`)
}

func TestDocumentWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	doc := &Document{Variables: []string{"x"}, Parents: map[string][]string{"x": {"x"}}, Runtime: 2}
	require.NoError(t, doc.WriteFile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded struct {
		Variables map[string]struct {
			Parents []string `json:"parents"`
		} `json:"variables"`
		Runtime float64 `json:"runtime"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, []string{"x"}, decoded.Variables["x"].Parents)
	assert.Equal(t, 2.0, decoded.Runtime)
}

func TestDocumentWriteFileMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "result.json")
	err := (&Document{}).WriteFile(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
