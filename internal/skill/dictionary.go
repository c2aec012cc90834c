package skill

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"skillbot/internal/domain"
	"skillbot/internal/metrics"
)

const (
	defaultDictionaryAPIBase = "https://api.dictionaryapi.dev"
	maxSynonyms              = 5
	maxAntonyms              = 3
)

var definePattern = commandPattern("define")

// DictionaryConfig configures the dictionary skill.
type DictionaryConfig struct {
	APIBase string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// DictionaryData is the structured result of the dictionary skill.
type DictionaryData struct {
	Word      string    `json:"word"`
	Phonetic  string    `json:"phonetic,omitempty"`
	Meanings  []Meaning `json:"meanings"`
	Synonyms  []string  `json:"synonyms"`
	Antonyms  []string  `json:"antonyms"`
	Simulated bool      `json:"simulated,omitempty"`
}

type Meaning struct {
	PartOfSpeech string       `json:"partOfSpeech"`
	Definitions  []Definition `json:"definitions"`
}

type Definition struct {
	Definition string `json:"definition"`
	Example    string `json:"example,omitempty"`
}

// Dictionary looks words up in the Free Dictionary API.
type Dictionary struct {
	apiBase string
	client  *http.Client
	logger  *slog.Logger
}

func NewDictionary(cfg DictionaryConfig) *Dictionary {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultDictionaryAPIBase
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dictionary{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (d *Dictionary) Name() string { return "define" }

func (d *Dictionary) Description() string { return "Look up the definition of a word" }

func (d *Dictionary) Triggers() domain.Trigger {
	return domain.Trigger{
		Patterns: []*regexp.Regexp{definePattern},
		Phrases:  []string{"definition of", "meaning of", "what does", "define"},
	}
}

func (d *Dictionary) Execute(ctx context.Context, word string) (*domain.SkillResult, error) {
	fields := strings.Fields(strings.ToLower(word))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: word is required", ErrInvalidArgument)
	}
	// Multi-word queries are looked up by their first word.
	search := fields[0]

	data, err := d.lookup(ctx, search)
	if err != nil {
		d.logger.Warn("dictionary lookup failed, using backup data", "word", search, "err", err)
		metrics.RecordSkillFallback(d.Name(), "upstream_error")
		data = backupEntry(search)
		data.Simulated = true
	}
	// Callers get empty lists, never null.
	if data.Synonyms == nil {
		data.Synonyms = []string{}
	}
	if data.Antonyms == nil {
		data.Antonyms = []string{}
	}

	text := formatDefinition(data)
	if data.Simulated {
		text += "\n(Note: Using backup dictionary data as the API request failed)"
	}
	return &domain.SkillResult{Text: text, Data: data}, nil
}

type apiEntry struct {
	Word     string       `json:"word"`
	Phonetic string       `json:"phonetic"`
	Meanings []apiMeaning `json:"meanings"`
}

type apiMeaning struct {
	PartOfSpeech string          `json:"partOfSpeech"`
	Definitions  []apiDefinition `json:"definitions"`
	Synonyms     []string        `json:"synonyms"`
	Antonyms     []string        `json:"antonyms"`
}

type apiDefinition struct {
	Definition string   `json:"definition"`
	Example    string   `json:"example"`
	Synonyms   []string `json:"synonyms"`
	Antonyms   []string `json:"antonyms"`
}

func (d *Dictionary) lookup(ctx context.Context, word string) (DictionaryData, error) {
	var entries []apiEntry
	endpoint := d.apiBase + "/api/v2/entries/en/" + url.PathEscape(word)
	if err := getJSON(ctx, d.client, endpoint, &entries, d.logger); err != nil {
		return DictionaryData{}, err
	}
	if len(entries) == 0 {
		return DictionaryData{}, fmt.Errorf("no entries for %q", word)
	}

	entry := entries[0]
	data := DictionaryData{
		Word:     entry.Word,
		Phonetic: entry.Phonetic,
		Meanings: make([]Meaning, 0, len(entry.Meanings)),
	}
	if data.Word == "" {
		data.Word = word
	}
	for _, m := range entry.Meanings {
		meaning := Meaning{PartOfSpeech: m.PartOfSpeech}
		data.Synonyms = append(data.Synonyms, m.Synonyms...)
		data.Antonyms = append(data.Antonyms, m.Antonyms...)
		for _, def := range m.Definitions {
			meaning.Definitions = append(meaning.Definitions, Definition{
				Definition: def.Definition,
				Example:    def.Example,
			})
			data.Synonyms = append(data.Synonyms, def.Synonyms...)
			data.Antonyms = append(data.Antonyms, def.Antonyms...)
		}
		if len(meaning.Definitions) > 0 {
			data.Meanings = append(data.Meanings, meaning)
		}
	}
	return data, nil
}

func formatDefinition(data DictionaryData) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Definition of %q: ", data.Word)

	if len(data.Meanings) == 0 {
		sb.WriteString("No definition found.")
		return sb.String()
	}

	first := data.Meanings[0]
	fmt.Fprintf(&sb, "(%s) %s", first.PartOfSpeech, first.Definitions[0].Definition)
	if len(data.Meanings) > 1 {
		second := data.Meanings[1]
		fmt.Fprintf(&sb, "\nAlso (%s): %s", second.PartOfSpeech, second.Definitions[0].Definition)
	}
	if syn := uniqueN(data.Synonyms, maxSynonyms); len(syn) > 0 {
		sb.WriteString("\nSynonyms: " + strings.Join(syn, ", "))
	}
	if ant := uniqueN(data.Antonyms, maxAntonyms); len(ant) > 0 {
		sb.WriteString("\nAntonyms: " + strings.Join(ant, ", "))
	}
	return sb.String()
}

// uniqueN returns up to n distinct values, keeping first-seen order.
func uniqueN(values []string, n int) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}

var backupEntries = map[string]DictionaryData{
	"hello": {
		Word:     "hello",
		Phonetic: "/həˈloʊ/",
		Meanings: []Meaning{
			{PartOfSpeech: "exclamation", Definitions: []Definition{{
				Definition: "Used as a greeting or to begin a phone conversation.",
				Example:    "hello there, Katie!",
			}}},
			{PartOfSpeech: "noun", Definitions: []Definition{{
				Definition: `An utterance of "hello"; a greeting.`,
				Example:    "she was getting polite nods and hellos from people",
			}}},
		},
	},
	"weather": {
		Word:     "weather",
		Phonetic: "/ˈwɛðər/",
		Meanings: []Meaning{
			{PartOfSpeech: "noun", Definitions: []Definition{{
				Definition: "The state of the atmosphere at a particular place and time as regards heat, cloudiness, dryness, sunshine, wind, rain, etc.",
				Example:    "if the weather's good, we can go for a walk",
			}}},
			{PartOfSpeech: "verb", Definitions: []Definition{{
				Definition: "Wear away or change the appearance or texture of (something) by long exposure to the atmosphere.",
				Example:    "his skin was weathered by the sun and wind",
			}}},
		},
		Synonyms: []string{"climate", "atmospheric conditions", "meteorological conditions"},
	},
	"calculate": {
		Word:     "calculate",
		Phonetic: "/ˈkælkjəˌleɪt/",
		Meanings: []Meaning{
			{PartOfSpeech: "verb", Definitions: []Definition{
				{
					Definition: "Determine (the amount or number of something) mathematically.",
					Example:    "the program can calculate the number of words in a text",
				},
				{
					Definition: "Plan or devise (something) carefully.",
					Example:    "the candidate is calculating his next move",
				},
			}},
		},
		Synonyms: []string{"compute", "reckon", "work out", "determine"},
	},
}

// backupEntry returns the built-in entry for word, or a generic placeholder.
func backupEntry(word string) DictionaryData {
	if e, ok := backupEntries[word]; ok {
		return e
	}
	return DictionaryData{
		Word:     word,
		Phonetic: "/ˈ" + word + "/",
		Meanings: []Meaning{{
			PartOfSpeech: "noun",
			Definitions: []Definition{{
				Definition: fmt.Sprintf("This is a mock definition for %q. In a real application, this would be fetched from a dictionary API.", word),
				Example:    fmt.Sprintf("Using %q in a sentence.", word),
			}},
		}},
		Synonyms: []string{"similar", "comparable", "equivalent"},
	}
}
