package document

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLoader 创建测试用的加载器，调高限流避免拖慢测试
func newTestLoader(config WebLoaderConfig) *WebLoader {
	if config.RateLimit == 0 {
		config.RateLimit = 1000
	}
	return NewWebLoader(config)
}

// TestWebLoaderLoadOne 测试抓取单个页面
func TestWebLoaderLoadOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>测试页面</title><script>var x = 1;</script></head>
<body><main><h1>文档标题</h1><p>这是正文内容。</p></main></body></html>`)
	}))
	defer server.Close()

	loader := newTestLoader(WebLoaderConfig{})

	doc, err := loader.LoadOne(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "测试页面", doc.Title)
	assert.Equal(t, server.URL, doc.Source)
	assert.Contains(t, doc.Content, "这是正文内容。")
	assert.NotContains(t, doc.Content, "var x")
	assert.Contains(t, doc.Meta["content_type"], "text/html")
	assert.NotEmpty(t, doc.Meta["fetched_at"])
}

// TestWebLoaderLoadOneNotFound 测试非200响应
func TestWebLoaderLoadOneNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	loader := newTestLoader(WebLoaderConfig{})

	_, err := loader.LoadOne(context.Background(), server.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

// TestWebLoaderLoadOneEmptyContent 测试没有正文的页面
func TestWebLoaderLoadOneEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body></body></html>")
	}))
	defer server.Close()

	loader := newTestLoader(WebLoaderConfig{})

	_, err := loader.LoadOne(context.Background(), server.URL)
	assert.Error(t, err)
}

// TestWebLoaderLoadMultiple 测试批量抓取
func TestWebLoaderLoadMultiple(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><head><title>页面%s</title></head><body><p>内容%s</p></body></html>", r.URL.Path, r.URL.Path)
	}))
	defer server.Close()

	loader := newTestLoader(WebLoaderConfig{})

	docs, err := loader.Load(context.Background(), server.URL+"/a", server.URL+"/b")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, server.URL+"/a", docs[0].Source)
	assert.Equal(t, server.URL+"/b", docs[1].Source)

	_, err = loader.Load(context.Background())
	assert.Error(t, err)
}

// TestWebLoaderUserAgent 测试自定义UA被带上
func TestWebLoaderUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, "<html><body><p>内容</p></body></html>")
	}))
	defer server.Close()

	loader := newTestLoader(WebLoaderConfig{UserAgent: "custom-bot/2.0"})

	_, err := loader.LoadOne(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "custom-bot/2.0", gotUA)
}

// TestWebLoaderCrawl 测试站点递归抓取
func TestWebLoaderCrawl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>首页</title></head><body>
<p>首页内容</p>
<a href="/page1">页面一</a>
<a href="/page1#section">带锚点的重复链接</a>
<a href="/style.css">样式表</a>
<a href="https://other.example.com/out">外部链接</a>
</body></html>`)
	})
	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>页面一</title></head><body>
<p>页面一内容</p>
<a href="/page2">页面二</a>
</body></html>`)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>页面二</title></head><body><p>页面二内容</p></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var mu sync.Mutex
	var fetched []string

	loader := newTestLoader(WebLoaderConfig{
		MaxDepth: 2,
		OnProgress: func(pageURL string) {
			mu.Lock()
			fetched = append(fetched, pageURL)
			mu.Unlock()
		},
	})

	docs, err := loader.Crawl(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, docs, 3)

	sources := make(map[string]Document)
	for _, doc := range docs {
		sources[doc.Source] = doc
	}
	assert.Contains(t, sources, server.URL+"/")
	assert.Contains(t, sources, server.URL+"/page1")
	assert.Contains(t, sources, server.URL+"/page2")

	// 深度记录在元数据里
	assert.Equal(t, "0", sources[server.URL+"/"].Meta["depth"])
	assert.Equal(t, "1", sources[server.URL+"/page1"].Meta["depth"])
	assert.Equal(t, "2", sources[server.URL+"/page2"].Meta["depth"])

	// 进度回调覆盖每个被抓取的页面，且不含跳过的资源
	assert.Len(t, fetched, 3)
	for _, pageURL := range fetched {
		assert.False(t, strings.HasSuffix(pageURL, ".css"))
		assert.True(t, strings.HasPrefix(pageURL, server.URL))
	}
}

// TestWebLoaderCrawlDepthLimit 测试深度限制
func TestWebLoaderCrawlDepthLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>首页</p><a href="/deep1">链接</a></body></html>`)
	})
	mux.HandleFunc("/deep1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>一层</p><a href="/deep2">链接</a></body></html>`)
	})
	mux.HandleFunc("/deep2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>二层</p></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	loader := newTestLoader(WebLoaderConfig{MaxDepth: 1})

	docs, err := loader.Crawl(context.Background(), server.URL+"/")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

// TestWebLoaderCrawlIgnorePatterns 测试忽略规则
func TestWebLoaderCrawlIgnorePatterns(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>首页</p>
<a href="/docs/guide">文档</a>
<a href="/admin/login">后台</a>
</body></html>`)
	})
	mux.HandleFunc("/docs/guide", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>文档内容</p></body></html>`)
	})
	mux.HandleFunc("/admin/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>后台内容</p></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	loader := newTestLoader(WebLoaderConfig{
		MaxDepth:       2,
		IgnorePatterns: []string{"/admin/"},
	})

	docs, err := loader.Crawl(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, doc := range docs {
		assert.NotContains(t, doc.Source, "/admin/")
	}
}

// TestWebLoaderCrawlToleratesPageFailure 测试单页失败不中断整体抓取
func TestWebLoaderCrawlToleratesPageFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>首页</p><a href="/broken">坏链接</a><a href="/ok">好链接</a></body></html>`)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>正常页面</p></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	loader := newTestLoader(WebLoaderConfig{MaxDepth: 1})

	docs, err := loader.Crawl(context.Background(), server.URL+"/")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

// TestWebLoaderCrawlNoDocuments 测试抓取不到任何文档时报错
func TestWebLoaderCrawlNoDocuments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	loader := newTestLoader(WebLoaderConfig{MaxDepth: 1})

	_, err := loader.Crawl(context.Background(), server.URL+"/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no documents")
}
