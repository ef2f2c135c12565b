package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"options-trading-bot/internal/logger"
	"options-trading-bot/internal/types"
)

// Scraper pulls recent headlines for a symbol from financial news sites.
type Scraper struct {
	sources []NewsSource
	timeout time.Duration
}

// NewsSource defines one site to scrape.
type NewsSource struct {
	Name       string
	BaseURL    string
	SearchPath string // "{symbol}" is replaced with the ticker
	Selectors  ArticleSelectors
	RateLimit  time.Duration
}

// ArticleSelectors are the CSS selectors for pulling article data out of a
// source's listing page.
type ArticleSelectors struct {
	ArticleContainer string
	Title            string
	URL              string
	Content          string
	PublishedAt      string
}

func NewScraper(timeout time.Duration) *Scraper {
	return &Scraper{
		sources: defaultSources(),
		timeout: timeout,
	}
}

func defaultSources() []NewsSource {
	return []NewsSource{
		{
			Name:       "YahooFinance",
			BaseURL:    "https://finance.yahoo.com",
			SearchPath: "/quote/{symbol}/news",
			Selectors: ArticleSelectors{
				ArticleContainer: "li.stream-item",
				Title:            "h3",
				URL:              "a",
				Content:          "p",
				PublishedAt:      "div.publishing",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:       "Finviz",
			BaseURL:    "https://finviz.com",
			SearchPath: "/quote.ashx?t={symbol}",
			Selectors: ArticleSelectors{
				ArticleContainer: "tr.news-table-row",
				Title:            "a.tab-link-news",
				URL:              "a.tab-link-news",
				Content:          "",
				PublishedAt:      "td.news-date-cell",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:       "MarketWatch",
			BaseURL:    "https://www.marketwatch.com",
			SearchPath: "/investing/stock/{symbol}",
			Selectors: ArticleSelectors{
				ArticleContainer: "div.element--article",
				Title:            "h3.article__headline a",
				URL:              "h3.article__headline a",
				Content:          "p.article__summary",
				PublishedAt:      "span.article__timestamp",
			},
			RateLimit: 2 * time.Second,
		},
	}
}

// Fetch pulls up to maxArticles headlines across all sources. Sources that
// fail are skipped; an empty result is not an error.
func (s *Scraper) Fetch(ctx context.Context, symbol string, maxArticles int) ([]types.NewsArticle, error) {
	logger.Debug(ctx, "Scraping headlines", "symbol", symbol, "sources", len(s.sources))

	perSource := maxArticles / len(s.sources)
	if perSource < 1 {
		perSource = 1
	}

	var all []types.NewsArticle
	for _, source := range s.sources {
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
		articles, err := s.scrapeSource(ctx, source, symbol, perSource)
		if err != nil {
			logger.Warn(ctx, "Source scrape failed",
				"source", source.Name, "symbol", symbol, "error", err.Error())
			continue
		}
		all = append(all, articles...)
		time.Sleep(source.RateLimit)
	}

	if len(all) == 0 {
		fallback, err := s.fetchGoogleNews(ctx, symbol, maxArticles)
		if err != nil {
			logger.Warn(ctx, "Google News fallback failed", "symbol", symbol, "error", err.Error())
		}
		all = fallback
	}

	if len(all) > maxArticles {
		all = all[:maxArticles]
	}
	logger.Debug(ctx, "Headline scrape finished", "symbol", symbol, "articles", len(all))
	return all, nil
}

func (s *Scraper) scrapeSource(ctx context.Context, source NewsSource, symbol string, maxArticles int) ([]types.NewsArticle, error) {
	var articles []types.NewsArticle

	c := colly.NewCollector(
		colly.AllowedDomains(hostOf(source.BaseURL)),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnHTML(source.Selectors.ArticleContainer, func(e *colly.HTMLElement) {
		if len(articles) >= maxArticles {
			return
		}
		title := strings.TrimSpace(e.ChildText(source.Selectors.Title))
		if title == "" {
			return
		}
		articleURL := e.ChildAttr(source.Selectors.URL, "href")
		if articleURL == "" {
			return
		}
		if !strings.HasPrefix(articleURL, "http") {
			articleURL = source.BaseURL + articleURL
		}

		var content string
		if source.Selectors.Content != "" {
			content = strings.TrimSpace(firstText(e.DOM, source.Selectors.Content))
		}
		articles = append(articles, types.NewsArticle{
			Title:       title,
			URL:         articleURL,
			Content:     content,
			Source:      source.Name,
			PublishedAt: strings.TrimSpace(e.ChildText(source.Selectors.PublishedAt)),
			Symbol:      symbol,
		})
	})

	searchURL := source.BaseURL + strings.ReplaceAll(source.SearchPath, "{symbol}", strings.ToUpper(symbol))
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", searchURL, err)
	}
	c.Wait()

	return articles, nil
}

// firstText returns the text of the first node matching the selector.
// ChildText concatenates every match, which runs summaries together on
// listing pages that repeat the selector.
func firstText(sel *goquery.Selection, selector string) string {
	return sel.Find(selector).First().Text()
}

// fetchGoogleNews is the fallback when every primary source comes back empty.
func (s *Scraper) fetchGoogleNews(ctx context.Context, symbol string, maxArticles int) ([]types.NewsArticle, error) {
	var articles []types.NewsArticle

	c := colly.NewCollector(
		colly.AllowedDomains("news.google.com", "www.google.com"),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	})

	c.OnHTML("article", func(e *colly.HTMLElement) {
		if len(articles) >= maxArticles {
			return
		}
		title := e.ChildText("h3, h4")
		link := e.ChildAttr("a", "href")
		if title == "" || link == "" {
			return
		}
		if strings.HasPrefix(link, "./articles/") {
			link = "https://news.google.com" + link[1:]
		}
		articles = append(articles, types.NewsArticle{
			Title:  title,
			URL:    link,
			Source: "GoogleNews",
			Symbol: symbol,
		})
	})

	query := url.QueryEscape(symbol + " stock news")
	searchURL := fmt.Sprintf("https://news.google.com/search?q=%s&hl=en-US&gl=US&ceid=US:en", query)
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("scrape Google News: %w", err)
	}
	c.Wait()

	logger.Debug(ctx, "Google News fallback finished", "symbol", symbol, "articles", len(articles))
	return articles, nil
}

func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
