package document

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser HTML文档解析器
// 同时被文件上传和网页加载两条链路复用
type HTMLParser struct{}

// NewHTMLParser 创建新的HTML解析器
func NewHTMLParser() Parser {
	return &HTMLParser{}
}

// Parse 解析HTML文件并提取文本内容
func (p *HTMLParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open html file: %w", err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析HTML内容
func (p *HTMLParser) ParseReader(r io.Reader, filename string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	// 去掉不含正文的节点
	doc.Find("script, style, noscript, iframe").Remove()

	text := ExtractMainContent(doc)
	if text == "" {
		return "", fmt.Errorf("no text content found in html document")
	}

	return text, nil
}

// mainContentSelectors 正文区域的候选选择器，按优先级排列
var mainContentSelectors = []string{
	"main",
	"article",
	".post-content",
	".content",
	"#content",
	".documentation",
	"#documentation",
}

// ExtractMainContent 从HTML文档中抽取正文文本
// 优先查找常见的正文容器，找不到时回退到body
func ExtractMainContent(doc *goquery.Document) string {
	var content string
	for _, selector := range mainContentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	if content == "" {
		content = doc.Find("body").Text()
	}

	return NormalizeWhitespace(content)
}

// NormalizeWhitespace 压缩空白字符
// 段落边界（连续空行）保留为\n\n，段内空白压缩为单个空格
func NormalizeWhitespace(text string) string {
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		fields := strings.Fields(block)
		if len(fields) == 0 {
			continue
		}
		paragraphs = append(paragraphs, strings.Join(fields, " "))
	}
	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}
