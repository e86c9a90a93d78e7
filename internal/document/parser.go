package document

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// Parser 文档解析器接口
// 负责将不同格式的文档解析为纯文本
type Parser interface {
	// Parse 解析文档，返回文本内容
	Parse(filePath string) (string, error)

	// ParseReader 从Reader解析文档，返回文本内容
	// filename用于确定文档类型
	ParseReader(r io.Reader, filename string) (string, error)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// HTML 网页类型
	HTML ContentType = "html"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// ErrUnsupportedType 不支持的文档类型错误
var ErrUnsupportedType = errors.New("unsupported document type")

// ParserFactory 解析器工厂函数，根据文件类型创建对应的解析器
func ParserFactory(filePath string) (Parser, error) {
	contentType := DetectContentType(filePath)

	switch contentType {
	case PDF:
		return NewPDFParser(), nil
	case Markdown:
		return NewMarkdownParser(), nil
	case HTML:
		return NewHTMLParser(), nil
	case PlainText:
		return NewPlainTextParser(), nil
	default:
		return nil, ErrUnsupportedType
	}
}

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filePath string) ContentType {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".html", ".htm":
		return HTML
	case ".txt", ".text":
		return PlainText
	default:
		return Unknown
	}
}

// Document 加载后的文档结构
// 一条记录对应一个来源（一个网页或一个上传文件）
type Document struct {
	Content string            // 文档文本内容
	Title   string            // 文档标题（可选）
	Source  string            // 来源，URL或文件路径
	Meta    map[string]string // 元数据（抓取时间、Content-Type等）
}

// Chunk 表示文档切分后的一个文本块
type Chunk struct {
	Text  string // 文本内容
	Index int    // 块在原文档中的序号
}

// Splitter 文本切分器接口
// 负责将长文本切分成适合向量化的小块
type Splitter interface {
	// Split 将文本切分成块
	Split(text string) ([]Chunk, error)
}
