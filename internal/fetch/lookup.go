package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Dictionary looks up English word definitions on dictionaryapi.dev.
type Dictionary struct {
	transport
	baseURL string
}

// NewDictionary creates a dictionary client.
func NewDictionary(cfg Config) *Dictionary {
	return &Dictionary{
		transport: newTransport("dictionary", cfg),
		baseURL:   baseURLOr(cfg.DictionaryBaseURL, "https://api.dictionaryapi.dev/api/v2/entries/en"),
	}
}

// Define returns the first definition of the first meaning of word.
func (d *Dictionary) Define(ctx context.Context, word string) (string, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return "", fmt.Errorf("define: empty word")
	}

	doc, err := d.getJSON(ctx, d.baseURL+"/"+url.PathEscape(word), nil)
	if err != nil {
		return "", fmt.Errorf("define %q: %w", word, err)
	}
	definition := strings.TrimSpace(doc.Get("0.meanings.0.definitions.0.definition").String())
	if definition == "" {
		return "", fmt.Errorf("define %q: %w", word, ErrNotFound)
	}

	return definition, nil
}

// Giphy searches animated images.
type Giphy struct {
	transport
	baseURL string
	apiKey  string
}

// NewGiphy creates a giphy client. Without an API key every search fails
// with ErrNotConfigured.
func NewGiphy(cfg Config) *Giphy {
	return &Giphy{
		transport: newTransport("giphy", cfg),
		baseURL:   baseURLOr(cfg.GiphyBaseURL, "https://api.giphy.com/v1"),
		apiKey:    strings.TrimSpace(cfg.GiphyAPIKey),
	}
}

// Enabled reports whether an API key is configured.
func (g *Giphy) Enabled() bool {
	return g != nil && g.apiKey != ""
}

// Search returns the original-size URL of the best match for query.
func (g *Giphy) Search(ctx context.Context, query string) (string, error) {
	if !g.Enabled() {
		return "", fmt.Errorf("gif search: %w", ErrNotConfigured)
	}

	params := url.Values{}
	params.Set("api_key", g.apiKey)
	params.Set("q", query)
	params.Set("limit", "1")

	doc, err := g.getJSON(ctx, g.baseURL+"/gifs/search?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("gif search %q: %w", query, err)
	}
	gifURL := doc.Get("data.0.images.original.url").String()
	if gifURL == "" {
		return "", fmt.Errorf("gif search %q: %w", query, ErrNotFound)
	}

	return gifURL, nil
}

// Summary is the encyclopedia answer for one search.
type Summary struct {
	Title   string
	Extract string
	Related []string
	URL     string
}

// Wikipedia searches English Wikipedia and summarizes the top hit.
type Wikipedia struct {
	transport
	baseURL string
}

// NewWikipedia creates a wikipedia client.
func NewWikipedia(cfg Config) *Wikipedia {
	return &Wikipedia{
		transport: newTransport("wikipedia", cfg),
		baseURL:   baseURLOr(cfg.WikipediaBaseURL, "https://en.wikipedia.org"),
	}
}

// Summarize returns the intro paragraph of the best hit plus up to two related titles.
func (w *Wikipedia) Summarize(ctx context.Context, query string) (Summary, error) {
	search := url.Values{}
	search.Set("action", "query")
	search.Set("list", "search")
	search.Set("srsearch", query)
	search.Set("srlimit", "3")
	search.Set("format", "json")
	search.Set("utf8", "1")

	doc, err := w.getJSON(ctx, w.baseURL+"/w/api.php?"+search.Encode(), nil)
	if err != nil {
		return Summary{}, fmt.Errorf("wikipedia search %q: %w", query, err)
	}
	hits := doc.Get("query.search").Array()
	if len(hits) == 0 {
		return Summary{}, fmt.Errorf("wikipedia search %q: %w", query, ErrNotFound)
	}

	top := hits[0]
	title := top.Get("title").String()
	pageID := top.Get("pageid").Int()

	extracts := url.Values{}
	extracts.Set("action", "query")
	extracts.Set("prop", "extracts")
	extracts.Set("exintro", "1")
	extracts.Set("explaintext", "1")
	extracts.Set("pageids", strconv.FormatInt(pageID, 10))
	extracts.Set("format", "json")

	page, err := w.getJSON(ctx, w.baseURL+"/w/api.php?"+extracts.Encode(), nil)
	if err != nil {
		return Summary{}, fmt.Errorf("wikipedia extract %q: %w", title, err)
	}
	extract := page.Get("query.pages." + strconv.FormatInt(pageID, 10) + ".extract").String()
	if firstLine, _, found := strings.Cut(extract, "\n"); found {
		extract = firstLine
	}

	related := make([]string, 0, len(hits)-1)
	for _, hit := range hits[1:] {
		related = append(related, hit.Get("title").String())
	}

	return Summary{
		Title:   title,
		Extract: strings.TrimSpace(extract),
		Related: related,
		URL:     "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_")),
	}, nil
}
