package main

import (
	"context"

	"errand-bot/internal/fetch"
	"errand-bot/modules/digest"
	"errand-bot/modules/lookup"
)

// encyclopediaAdapter exposes the Wikipedia client to the lookup module.
type encyclopediaAdapter struct {
	client *fetch.Wikipedia
}

func (a encyclopediaAdapter) Summarize(ctx context.Context, query string) (lookup.Summary, error) {
	summary, err := a.client.Summarize(ctx, query)
	if err != nil {
		return lookup.Summary{}, err
	}

	return lookup.Summary(summary), nil
}

type productsAdapter struct {
	client *fetch.ProductHunt
}

func (a productsAdapter) TrendingDevTools(ctx context.Context) ([]digest.Product, error) {
	products, err := a.client.TrendingDevTools(ctx)
	if err != nil {
		return nil, err
	}

	converted := make([]digest.Product, 0, len(products))
	for _, product := range products {
		converted = append(converted, digest.Product{
			Name:    product.Name,
			Tagline: product.Tagline,
			URL:     product.URL,
			Votes:   product.Votes,
		})
	}

	return converted, nil
}

type articlesAdapter struct {
	client *fetch.DevTo
}

func (a articlesAdapter) TopArticles(ctx context.Context) ([]digest.Article, error) {
	articles, err := a.client.TopArticles(ctx)
	if err != nil {
		return nil, err
	}

	converted := make([]digest.Article, 0, len(articles))
	for _, article := range articles {
		converted = append(converted, digest.Article{
			Title:     article.Title,
			URL:       article.URL,
			Reactions: article.Reactions,
		})
	}

	return converted, nil
}

type activityAdapter struct {
	client *fetch.WakaTime
}

func (a activityAdapter) Enabled() bool {
	return a.client.Enabled()
}

func (a activityAdapter) Today(ctx context.Context) (digest.Activity, error) {
	activity, err := a.client.Today(ctx)
	if err != nil {
		return digest.Activity{}, err
	}

	return digest.Activity(activity), nil
}

var (
	_ lookup.Definer        = (*fetch.Dictionary)(nil)
	_ lookup.GIFSearcher    = (*fetch.Giphy)(nil)
	_ lookup.Encyclopedia   = encyclopediaAdapter{}
	_ digest.ProductSource  = productsAdapter{}
	_ digest.ArticleSource  = articlesAdapter{}
	_ digest.ActivitySource = activityAdapter{}
)
