package document

import (
	"fmt"
	"strings"
	"unicode"
)

// SplitType 文本切分策略
type SplitType string

const (
	// ByRecursive 按分隔符层级递归切分（默认策略）
	ByRecursive SplitType = "recursive"
	// ByParagraph 按段落切分
	ByParagraph SplitType = "paragraph"
	// BySentence 按句子切分
	BySentence SplitType = "sentence"
	// ByLength 按字符长度切分
	ByLength SplitType = "length"
)

// defaultSeparators 递归切分的分隔符层级
// 先按段落边界切，段落放不下再按行、按词，最后按字符硬切
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// SplitterConfig 切分器配置
type SplitterConfig struct {
	SplitType    SplitType // 切分策略
	ChunkSize    int       // 块大小上限（字符数）
	ChunkOverlap int       // 相邻块之间的重叠（字符数）
	MaxChunks    int       // 最大块数（0表示不限制）
	Separators   []string  // 递归切分的分隔符层级（为空使用默认值）
}

// DefaultSplitterConfig 返回默认切分器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		SplitType:    ByRecursive,
		ChunkSize:    1000,
		ChunkOverlap: 200,
		MaxChunks:    0,
	}
}

// TextSplitter 文本切分器实现
type TextSplitter struct {
	config SplitterConfig
}

// NewTextSplitter 创建新的文本切分器
func NewTextSplitter(config SplitterConfig) *TextSplitter {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	// 重叠不能吞掉整个块，否则切分无法推进
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 2
	}
	if len(config.Separators) == 0 {
		config.Separators = defaultSeparators
	}

	return &TextSplitter{config: config}
}

// Split 将文本切分成块
func (s *TextSplitter) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}, nil
	}

	var pieces []string

	switch s.config.SplitType {
	case ByRecursive, "":
		pieces = s.splitRecursive(text, s.config.Separators)
		pieces = s.mergeWithOverlap(pieces)
	case ByParagraph:
		pieces = s.splitByParagraph(text)
		pieces = s.handleLargeChunks(pieces)
	case BySentence:
		pieces = s.splitBySentence(text)
		pieces = s.mergeSmallChunks(pieces)
		pieces = s.handleLargeChunks(pieces)
	case ByLength:
		pieces = s.splitByLength(text)
	default:
		return nil, fmt.Errorf("unknown split type: %s", s.config.SplitType)
	}

	// 应用最大块数限制
	if s.config.MaxChunks > 0 && len(pieces) > s.config.MaxChunks {
		pieces = pieces[:s.config.MaxChunks]
	}

	chunks := make([]Chunk, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Text:  piece,
			Index: len(chunks),
		})
	}

	return chunks, nil
}

// splitRecursive 按分隔符层级递归切分文本
// 产出的每个片段长度都不超过ChunkSize，后续由mergeWithOverlap组装成块
func (s *TextSplitter) splitRecursive(text string, separators []string) []string {
	if len([]rune(text)) <= s.config.ChunkSize {
		return []string{text}
	}

	// 选择当前文本中出现的第一个分隔符
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	// 空分隔符表示按字符硬切
	if sep == "" {
		return s.splitByRunes(text)
	}

	var pieces []string
	for _, part := range strings.Split(text, sep) {
		if part == "" {
			continue
		}
		if len([]rune(part)) <= s.config.ChunkSize {
			pieces = append(pieces, part)
			continue
		}
		// 片段仍然过长，用更细的分隔符继续切
		pieces = append(pieces, s.splitRecursive(part, rest)...)
	}

	return pieces
}

// mergeWithOverlap 将片段组装成块，相邻块之间保留重叠
func (s *TextSplitter) mergeWithOverlap(pieces []string) []string {
	var chunks []string
	var current strings.Builder

	flush := func() string {
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		return chunk
	}

	for _, piece := range pieces {
		pieceLen := len([]rune(piece))
		if current.Len() > 0 && len([]rune(current.String()))+1+pieceLen > s.config.ChunkSize {
			chunk := flush()

			// 下一个块以上一个块的尾部开头，保持上下文连续
			if s.config.ChunkOverlap > 0 && chunk != "" {
				tail := overlapTail(chunk, s.config.ChunkOverlap)
				if tail != "" && len([]rune(tail))+1+pieceLen <= s.config.ChunkSize {
					current.WriteString(tail)
				}
			}
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(piece)
	}
	flush()

	return chunks
}

// overlapTail 取文本末尾不超过overlap个字符的片段，尽量在词边界截断
func overlapTail(text string, overlap int) string {
	runes := []rune(text)
	if len(runes) <= overlap {
		return text
	}

	tail := runes[len(runes)-overlap:]
	// 向后找到第一个空白，避免从词中间开始
	for i, r := range tail {
		if unicode.IsSpace(r) {
			return strings.TrimSpace(string(tail[i:]))
		}
	}
	return strings.TrimSpace(string(tail))
}

// splitByRunes 按字符硬切，保留重叠
func (s *TextSplitter) splitByRunes(text string) []string {
	runes := []rune(text)
	step := s.config.ChunkSize - s.config.ChunkOverlap
	if step <= 0 {
		step = s.config.ChunkSize
	}

	var pieces []string
	for i := 0; i < len(runes); i += step {
		end := i + s.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}

	return pieces
}

// splitByParagraph 按空行切分文本
func (s *TextSplitter) splitByParagraph(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var result []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}

	return result
}

// sentenceDelimiters 句子结束符，兼容中英文标点
var sentenceDelimiters = []rune{'.', '!', '?', '；', '。', '！', '？'}

// splitBySentence 按句子切分文本
func (s *TextSplitter) splitBySentence(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, char := range text {
		current.WriteRune(char)

		isEnd := false
		for _, d := range sentenceDelimiters {
			if char == d {
				isEnd = true
				break
			}
		}

		if isEnd {
			sentence := strings.TrimSpace(current.String())
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
		}
	}

	// 末尾可能没有结束符
	last := strings.TrimSpace(current.String())
	if last != "" {
		sentences = append(sentences, last)
	}

	return sentences
}

// splitByLength 按固定长度切分文本
func (s *TextSplitter) splitByLength(text string) []string {
	return s.splitByRunes(text)
}

// mergeSmallChunks 合并过小的片段
// 长度按字符数衡量，与其余切分逻辑保持一致
func (s *TextSplitter) mergeSmallChunks(pieces []string) []string {
	if len(pieces) <= 1 {
		return pieces
	}

	var result []string
	var current strings.Builder
	currentLen := 0

	for _, piece := range pieces {
		pieceLen := len([]rune(piece))

		joinedLen := currentLen + pieceLen
		if currentLen > 0 {
			joinedLen++ // 连接用的空格
		}

		if joinedLen <= s.config.ChunkSize {
			if currentLen > 0 {
				current.WriteString(" ")
			}
			current.WriteString(piece)
			currentLen = joinedLen
		} else {
			if currentLen > 0 {
				result = append(result, current.String())
			}
			current.Reset()
			current.WriteString(piece)
			currentLen = pieceLen
		}
	}

	if currentLen > 0 {
		result = append(result, current.String())
	}

	return result
}

// handleLargeChunks 将超长片段按长度再切分
func (s *TextSplitter) handleLargeChunks(pieces []string) []string {
	var result []string

	for _, piece := range pieces {
		if len([]rune(piece)) > s.config.ChunkSize {
			result = append(result, s.splitByRunes(piece)...)
		} else {
			result = append(result, piece)
		}
	}

	return result
}
