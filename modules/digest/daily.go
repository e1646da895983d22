package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"errand-bot/pkg/errand"

	"golang.org/x/sync/errgroup"
)

const digestApology = "*Adjusts cap apologetically* I do beg your pardon, I couldn't put today's digest together. I shall try again shortly! 🎩"

var digestIntros = []string{
	"Good morning! *Adjusts spectacles* I've scoured the streets for the finest discoveries!",
	"*Polishes monocle* Behold the marvels in today's technological gazette!",
	"*Straightens bow tie* By my reckoning, these are today's most intriguing developments!",
	"A splendid morning! Allow me to present today's technological wonders!",
	"What fascinating finds await in today's digest! *Adjusts waistcoat excitedly*",
}

// errDigestEmpty reports that no source returned anything.
var errDigestEmpty = errors.New("digest: every source failed or came back empty")

// buildDigest fetches products and articles in parallel. A failing source is
// left out; the digest fails only when nothing at all came back.
func (m *Module) buildDigest(ctx context.Context) (string, error) {
	var (
		products    []Product
		articles    []Article
		productErr  error
		articlesErr error
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		products, productErr = m.products.TrendingDevTools(groupCtx)
		return nil
	})
	group.Go(func() error {
		articles, articlesErr = m.articles.TopArticles(groupCtx)
		return nil
	})
	if err := group.Wait(); err != nil {
		return "", fmt.Errorf("digest fetch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("digest fetch: %w", err)
	}

	if productErr != nil && !errors.Is(productErr, errand.ErrNotConfigured) {
		m.logger.WarnContext(ctx, "digest products unavailable", "error", productErr)
	}
	if articlesErr != nil {
		m.logger.WarnContext(ctx, "digest articles unavailable", "error", articlesErr)
	}
	if len(products) == 0 && len(articles) == 0 {
		return "", errors.Join(errDigestEmpty, productErr, articlesErr)
	}

	return renderDigest(digestIntros[m.pick(len(digestIntros))], products, articles), nil
}

func renderDigest(intro string, products []Product, articles []Article) string {
	var builder strings.Builder
	builder.WriteString(intro)
	builder.WriteString("\n\n")

	if len(products) > 0 {
		builder.WriteString("🏹 *Today's Most Ingenious Developer Tools & Products*\n")
		for _, product := range products {
			fmt.Fprintf(&builder, "• %s - %s (%d votes)\n  %s\n", product.Name, product.Tagline, product.Votes, product.URL)
		}
		builder.WriteString("\n")
	}
	if len(articles) > 0 {
		builder.WriteString("📚 *Most Engaging Developer Articles*\n")
		for _, article := range articles {
			fmt.Fprintf(&builder, "• %s (%d reactions)\n  %s\n", article.Title, article.Reactions, article.URL)
		}
		builder.WriteString("\n")
	}
	builder.WriteString("Do say the word if any of these marvels catches your eye! *Tips hat* 🎩")

	return builder.String()
}

func (m *Module) sendDailyDigest(ctx context.Context) {
	text, err := m.buildDigest(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.ErrorContext(ctx, "daily digest failed", "error", err)
		text = digestApology
	}
	if err := m.sendOwner(ctx, text); err != nil && ctx.Err() == nil {
		m.logger.ErrorContext(ctx, "send daily digest", "error", err)
	}
}
