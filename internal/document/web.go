package document

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// defaultUserAgent 抓取请求使用的UA
const defaultUserAgent = "webqa-bot/1.0"

// WebLoaderConfig 网页加载器配置
type WebLoaderConfig struct {
	Timeout        time.Duration      // 单次请求超时时间
	UserAgent      string             // User-Agent请求头
	RateLimit      float64            // 每秒请求数限制
	MaxDepth       int                // 递归抓取的最大深度
	IgnorePatterns []string           // URL中包含这些子串时跳过
	OnProgress     func(pageURL string) // 抓取进度回调（可选）
}

// DefaultWebLoaderConfig 返回默认的网页加载器配置
func DefaultWebLoaderConfig() WebLoaderConfig {
	return WebLoaderConfig{
		Timeout:   30 * time.Second,
		UserAgent: defaultUserAgent,
		RateLimit: 2,
		MaxDepth:  3,
	}
}

// WebLoader 网页加载器
// 抓取网页并抽取标题和正文，产出统一的Document记录
type WebLoader struct {
	config  WebLoaderConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebLoader 创建网页加载器
func NewWebLoader(config WebLoaderConfig) *WebLoader {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = 3
	}

	return &WebLoader{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Load 抓取给定的URL列表，每个URL产出一条Document
func (l *WebLoader) Load(ctx context.Context, urls ...string) ([]Document, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no urls to load")
	}

	docs := make([]Document, 0, len(urls))
	for _, u := range urls {
		doc, err := l.LoadOne(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", u, err)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// LoadOne 抓取单个URL
func (l *WebLoader) LoadOne(ctx context.Context, pageURL string) (Document, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Document{}, err
	}

	if l.config.OnProgress != nil {
		l.config.OnProgress(pageURL)
	}

	doc, resp, err := l.fetch(ctx, pageURL)
	if err != nil {
		return Document{}, err
	}

	return l.toDocument(pageURL, doc, resp)
}

// Crawl 从baseURL出发递归抓取同域名页面
// 深度受MaxDepth限制，已访问过的URL不会重复抓取
func (l *WebLoader) Crawl(ctx context.Context, baseURL string) ([]Document, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	c := &crawl{
		loader:  l,
		host:    parsed.Host,
		visited: make(map[string]bool),
	}

	var docs []Document
	if err := c.run(ctx, baseURL, 0, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("crawl of %s produced no documents", baseURL)
	}

	return docs, nil
}

// fetch 执行HTTP请求并解析HTML
func (l *WebLoader) fetch(ctx context.Context, pageURL string) (*goquery.Document, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.config.UserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse html: %w", err)
	}

	return doc, resp, nil
}

// toDocument 将抓取结果转换为Document记录
func (l *WebLoader) toDocument(pageURL string, doc *goquery.Document, resp *http.Response) (Document, error) {
	doc.Find("script, style, noscript, iframe").Remove()

	content := ExtractMainContent(doc)
	if content == "" {
		return Document{}, fmt.Errorf("no text content found at %s", pageURL)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	return Document{
		Content: content,
		Title:   title,
		Source:  pageURL,
		Meta: map[string]string{
			"content_type":  resp.Header.Get("Content-Type"),
			"last_modified": resp.Header.Get("Last-Modified"),
			"fetched_at":    time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// crawl 一次递归抓取的状态
type crawl struct {
	loader  *WebLoader
	host    string
	visited map[string]bool
}

// run 递归抓取单个URL及其同域名链接
func (c *crawl) run(ctx context.Context, pageURL string, depth int, docs *[]Document) error {
	if depth > c.loader.config.MaxDepth || c.visited[pageURL] {
		return nil
	}
	if !c.shouldVisit(pageURL) {
		return nil
	}
	c.visited[pageURL] = true

	if err := c.loader.limiter.Wait(ctx); err != nil {
		return err
	}
	if c.loader.config.OnProgress != nil {
		c.loader.config.OnProgress(pageURL)
	}

	doc, resp, err := c.loader.fetch(ctx, pageURL)
	if err != nil {
		// 单个页面失败不中断整体抓取
		return nil
	}

	record, err := c.loader.toDocument(pageURL, doc, resp)
	if err == nil {
		record.Meta["depth"] = fmt.Sprintf("%d", depth)
		*docs = append(*docs, record)
	}

	// 收集并跟进页面内链接
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		links = append(links, abs.String())
	})

	for _, link := range links {
		if err := c.run(ctx, link, depth+1, docs); err != nil {
			return err
		}
	}

	return nil
}

// shouldVisit 判断URL是否在抓取范围内
func (c *crawl) shouldVisit(pageURL string) bool {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return false
	}

	// 只抓同域名页面
	if parsed.Host != c.host {
		return false
	}

	// 跳过明显的非HTML资源
	path := strings.ToLower(parsed.Path)
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".css", ".js", ".zip", ".tar.gz"} {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}

	for _, pattern := range c.loader.config.IgnorePatterns {
		if strings.Contains(pageURL, pattern) {
			return false
		}
	}

	return true
}
