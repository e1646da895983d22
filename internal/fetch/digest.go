package fetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const productHuntQuery = `{
  posts(first: 5) {
    edges {
      node {
        name
        tagline
        url
        votesCount
        topics { edges { node { name } } }
      }
    }
  }
}`

// developerTopicMarkers select ProductHunt posts relevant to developers.
var developerTopicMarkers = []string{"developer", "tech", "programming", "software"}

// Product is one trending ProductHunt post.
type Product struct {
	Name    string
	Tagline string
	URL     string
	Votes   int
	Topics  []string
}

// ProductHunt reads trending posts from the ProductHunt GraphQL API.
type ProductHunt struct {
	transport
	endpoint string
	token    string
}

// NewProductHunt creates a ProductHunt client.
func NewProductHunt(cfg Config) *ProductHunt {
	return &ProductHunt{
		transport: newTransport("producthunt", cfg),
		endpoint:  baseURLOr(cfg.ProductHuntURL, "https://api.producthunt.com/v2/api/graphql"),
		token:     strings.TrimSpace(cfg.ProductHuntToken),
	}
}

// TrendingDevTools returns today's top posts tagged with a developer topic.
func (p *ProductHunt) TrendingDevTools(ctx context.Context) ([]Product, error) {
	if p.token == "" {
		return nil, fmt.Errorf("producthunt trending: %w", ErrNotConfigured)
	}

	body, err := json.Marshal(map[string]string{"query": productHuntQuery})
	if err != nil {
		return nil, fmt.Errorf("producthunt trending: encode query: %w", err)
	}
	doc, err := p.postJSON(ctx, p.endpoint, body, map[string]string{
		"Authorization": "Bearer " + p.token,
	})
	if err != nil {
		return nil, fmt.Errorf("producthunt trending: %w", err)
	}
	edges := doc.Get("data.posts.edges")
	if !edges.IsArray() {
		return nil, fmt.Errorf("producthunt trending: unexpected response shape")
	}

	products := make([]Product, 0, 5)
	for _, edge := range edges.Array() {
		node := edge.Get("node")
		topics := make([]string, 0)
		for _, topic := range node.Get("topics.edges.#.node.name").Array() {
			topics = append(topics, topic.String())
		}
		if !hasDeveloperTopic(topics) {
			continue
		}
		products = append(products, Product{
			Name:    node.Get("name").String(),
			Tagline: node.Get("tagline").String(),
			URL:     node.Get("url").String(),
			Votes:   int(node.Get("votesCount").Int()),
			Topics:  topics,
		})
	}

	return products, nil
}

func hasDeveloperTopic(topics []string) bool {
	for _, topic := range topics {
		lowered := strings.ToLower(topic)
		for _, marker := range developerTopicMarkers {
			if strings.Contains(lowered, marker) {
				return true
			}
		}
	}

	return false
}

// Article is one dev.to article.
type Article struct {
	Title     string
	URL       string
	Reactions int
	Tags      []string
}

// DevTo reads top articles from dev.to.
type DevTo struct {
	transport
	baseURL string
}

// NewDevTo creates a dev.to client.
func NewDevTo(cfg Config) *DevTo {
	return &DevTo{
		transport: newTransport("devto", cfg),
		baseURL:   baseURLOr(cfg.DevToBaseURL, "https://dev.to/api"),
	}
}

// TopArticles returns the five most popular recent articles.
func (d *DevTo) TopArticles(ctx context.Context) ([]Article, error) {
	params := url.Values{}
	params.Set("top", "5")
	params.Set("per_page", "5")

	doc, err := d.getJSON(ctx, d.baseURL+"/articles?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("devto top articles: %w", err)
	}
	if !doc.IsArray() {
		return nil, fmt.Errorf("devto top articles: unexpected response shape")
	}

	articles := make([]Article, 0, 5)
	for _, item := range doc.Array() {
		articles = append(articles, Article{
			Title:     item.Get("title").String(),
			URL:       item.Get("url").String(),
			Reactions: int(item.Get("public_reactions_count").Int()),
			Tags:      articleTags(item.Get("tag_list").Value()),
		})
	}

	return articles, nil
}

// articleTags accepts both the list and the comma-joined tag formats dev.to emits.
func articleTags(value any) []string {
	switch typed := value.(type) {
	case []any:
		tags := make([]string, 0, len(typed))
		for _, tag := range typed {
			if text, ok := tag.(string); ok && text != "" {
				tags = append(tags, text)
			}
		}
		return tags
	case string:
		tags := make([]string, 0)
		for _, tag := range strings.Split(typed, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		return tags
	default:
		return nil
	}
}

// Activity is today's dominant coding project and language.
type Activity struct {
	Project         string
	ProjectSeconds  float64
	Language        string
	LanguageSeconds float64
}

// WakaTime reads today's coding summary from a WakaTime compatible server.
type WakaTime struct {
	transport
	baseURL string
	apiKey  string
}

// NewWakaTime creates a WakaTime client.
func NewWakaTime(cfg Config) *WakaTime {
	return &WakaTime{
		transport: newTransport("wakatime", cfg),
		baseURL:   baseURLOr(cfg.WakaTimeBaseURL, "https://waka.hackclub.com/api/v1"),
		apiKey:    strings.TrimSpace(cfg.WakaTimeAPIKey),
	}
}

// Enabled reports whether an API key is configured.
func (w *WakaTime) Enabled() bool {
	return w != nil && w.apiKey != ""
}

// Today returns the project and language with the most time logged today.
// Entries with zero seconds are ignored.
func (w *WakaTime) Today(ctx context.Context) (Activity, error) {
	if !w.Enabled() {
		return Activity{}, fmt.Errorf("wakatime today: %w", ErrNotConfigured)
	}

	doc, err := w.getJSON(ctx, w.baseURL+"/users/current/statusbar/today", map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(w.apiKey)),
	})
	if err != nil {
		return Activity{}, fmt.Errorf("wakatime today: %w", err)
	}

	activity := Activity{}
	activity.Project, activity.ProjectSeconds = busiest(doc.Get("data.projects").Array())
	activity.Language, activity.LanguageSeconds = busiest(doc.Get("data.languages").Array())

	return activity, nil
}

func busiest(entries []gjson.Result) (string, float64) {
	name := ""
	best := 0.0
	for _, entry := range entries {
		seconds := entry.Get("total_seconds").Float()
		if seconds > best {
			name = entry.Get("name").String()
			best = seconds
		}
	}

	return name, best
}
