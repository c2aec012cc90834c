package skill

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const serendipityEntry = `[{
	"word": "serendipity",
	"phonetic": "/ˌsɛɹ.ənˈdɪp.ɪ.ti/",
	"meanings": [
		{
			"partOfSpeech": "noun",
			"definitions": [
				{"definition": "An unsought, unintended, and/or unexpected discovery made by happenstance.", "synonyms": ["chance", "luck"]},
				{"definition": "The property of making such discoveries.", "synonyms": ["luck", "fortune"]}
			],
			"synonyms": ["fluke", "accident", "fortuity"],
			"antonyms": ["design", "plan", "intention", "purpose"]
		},
		{
			"partOfSpeech": "verb",
			"definitions": [{"definition": "To find by serendipity."}]
		}
	]
}]`

func TestDictionary_LiveLookup(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(serendipityEntry))
	}))
	defer srv.Close()

	d := NewDictionary(DictionaryConfig{APIBase: srv.URL, Logger: testLogger()})
	res, err := d.Execute(context.Background(), "Serendipity in life")
	require.NoError(t, err)
	require.Equal(t, "/api/v2/entries/en/serendipity", path.Load())

	want := `Definition of "serendipity": (noun) An unsought, unintended, and/or unexpected discovery made by happenstance.` +
		"\nAlso (verb): To find by serendipity." +
		"\nSynonyms: fluke, accident, fortuity, chance, luck" +
		"\nAntonyms: design, plan, intention"
	require.Equal(t, want, res.Text)

	data, ok := res.Data.(DictionaryData)
	require.True(t, ok)
	require.Len(t, data.Meanings, 2)
	require.Len(t, data.Meanings[0].Definitions, 2)
	require.False(t, data.Simulated)
}

func TestDictionary_FallsBackOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"title":"No Definitions Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDictionary(DictionaryConfig{APIBase: srv.URL, Logger: testLogger()})
	res, err := d.Execute(context.Background(), "calculate")
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())

	want := `Definition of "calculate": (verb) Determine (the amount or number of something) mathematically.` +
		"\nSynonyms: compute, reckon, work out, determine" +
		"\n(Note: Using backup dictionary data as the API request failed)"
	require.Equal(t, want, res.Text)
	require.True(t, res.Data.(DictionaryData).Simulated)
}

func TestDictionary_GenericBackupEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	d := NewDictionary(DictionaryConfig{APIBase: srv.URL, Logger: testLogger()})
	res, err := d.Execute(context.Background(), "zyzzyva")
	require.NoError(t, err)
	require.Contains(t, res.Text, `This is a mock definition for "zyzzyva".`)
	require.Contains(t, res.Text, "Synonyms: similar, comparable, equivalent")
}

func TestDictionary_EmptyListsMarshalAsArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"word":"plain","meanings":[{"partOfSpeech":"adjective","definitions":[{"definition":"Not decorated."}]}]}]`))
	}))
	defer srv.Close()

	d := NewDictionary(DictionaryConfig{APIBase: srv.URL, Logger: testLogger()})
	for _, word := range []string{"plain", "calculate"} {
		res, err := d.Execute(context.Background(), word)
		require.NoError(t, err)

		raw, err := json.Marshal(res.Data)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"antonyms":[]`, word)
		require.NotContains(t, string(raw), "null", word)
	}
}

func TestFormatDefinition_NoMeanings(t *testing.T) {
	got := formatDefinition(DictionaryData{Word: "void"})
	require.Equal(t, `Definition of "void": No definition found.`, got)
}

func TestDictionary_EmptyWord(t *testing.T) {
	d := NewDictionary(DictionaryConfig{Logger: testLogger()})
	_, err := d.Execute(context.Background(), " \t ")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUniqueN(t *testing.T) {
	got := uniqueN([]string{"a", "b", "a", "c", "b", "d"}, 3)
	require.Equal(t, []string{"a", "b", "c"}, got)
	require.Empty(t, uniqueN(nil, 5))
}

func TestTriggerOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triggers.yaml")
	err := os.WriteFile(path, []byte(`
weather:
  phrases: ["forecast for", "is it raining in"]
unknown:
  phrases: ["whatever"]
`), 0o644)
	require.NoError(t, err)

	overlay, err := LoadTriggerOverlay(path, testLogger())
	require.NoError(t, err)
	require.Len(t, overlay, 2)

	reg := NewRegistry(testLogger())
	require.NoError(t, reg.RegisterBuiltins(BuiltinsConfig{}))
	reg.ApplyOverlay(overlay)

	phrases := reg.List()[0].Triggers().Phrases
	require.Equal(t, "forecast for", phrases[len(phrases)-2])
	require.Equal(t, "is it raining in", phrases[len(phrases)-1])
}

func TestTriggerOverlay_MissingFile(t *testing.T) {
	overlay, err := LoadTriggerOverlay(filepath.Join(t.TempDir(), "nope.yaml"), testLogger())
	require.NoError(t, err)
	require.Empty(t, overlay)
}

func TestTriggerOverlay_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weather: [unclosed"), 0o644))
	_, err := LoadTriggerOverlay(path, testLogger())
	require.Error(t, err)
}
