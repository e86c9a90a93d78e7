package document

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitByParagraph 测试按段落切分
func TestSplitByParagraph(t *testing.T) {
	splitter := NewTextSplitter(SplitterConfig{
		SplitType: ByParagraph,
		ChunkSize: 100,
	})

	text := "第一段内容。\n\n第二段内容。\n\n第三段内容。"
	chunks, err := splitter.Split(text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "第一段内容。", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 2, chunks[2].Index)
}

// TestSplitBySentence 测试按句子切分
func TestSplitBySentence(t *testing.T) {
	splitter := NewTextSplitter(SplitterConfig{
		SplitType: BySentence,
		ChunkSize: 10,
	})

	text := "第一句话。第二句话！第三句话？"
	chunks, err := splitter.Split(text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "第一句话。", chunks[0].Text)
}

// TestSplitByLength 测试按长度切分
func TestSplitByLength(t *testing.T) {
	splitter := NewTextSplitter(SplitterConfig{
		SplitType:    ByLength,
		ChunkSize:    10,
		ChunkOverlap: 0,
	})

	text := strings.Repeat("a", 25)
	chunks, err := splitter.Split(text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Text, 10)
	assert.Len(t, chunks[2].Text, 5)
}

// TestSplitRecursive 测试递归切分
func TestSplitRecursive(t *testing.T) {
	splitter := NewTextSplitter(SplitterConfig{
		SplitType:    ByRecursive,
		ChunkSize:    50,
		ChunkOverlap: 10,
	})

	text := strings.Repeat("word ", 40) + "\n\n" + strings.Repeat("more ", 40)
	chunks, err := splitter.Split(text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 50)
		assert.NotEmpty(t, strings.TrimSpace(chunk.Text))
	}
}

// TestSplitRecursiveOverlap 测试相邻块之间携带重叠
func TestSplitRecursiveOverlap(t *testing.T) {
	const overlap = 12
	splitter := NewTextSplitter(SplitterConfig{
		SplitType:    ByRecursive,
		ChunkSize:    40,
		ChunkOverlap: overlap,
	})

	// 用互不相同的词构造长文本，保证重叠检查不会误判
	var sb strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&sb, "w%02d ", i)
	}

	chunks, err := splitter.Split(sb.String())
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	// 每个后续块都以前一个块的尾部开头
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		head := []rune(chunks[i].Text)

		maxLen := overlap
		if maxLen > len(head) {
			maxLen = len(head)
		}

		shared := false
		for l := maxLen; l >= 1; l-- {
			prefix := strings.TrimSpace(string(head[:l]))
			if prefix != "" && strings.HasSuffix(prev, prefix) {
				shared = true
				break
			}
		}
		assert.True(t, shared, "chunk %d does not start with a tail of chunk %d", i, i-1)
	}
}

// TestSplitBySentenceMergesByRuneCount 测试中文句子按字符数合并
func TestSplitBySentenceMergesByRuneCount(t *testing.T) {
	splitter := NewTextSplitter(SplitterConfig{
		SplitType: BySentence,
		ChunkSize: 12,
	})

	// 三个5字符的句子：前两句合并后11字符，第三句放不下
	chunks, err := splitter.Split("第一句话。第二句话！第三句话？")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Text, "第一句话。")
	assert.Contains(t, chunks[0].Text, "第二句话！")
	assert.Equal(t, "第三句话？", chunks[1].Text)
}

// TestSplitRecursiveShortText 测试短文本不切分
func TestSplitRecursiveShortText(t *testing.T) {
	splitter := NewTextSplitter(DefaultSplitterConfig())

	chunks, err := splitter.Split("一段很短的文本。")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "一段很短的文本。", chunks[0].Text)
}

// TestSplitEmptyText 测试空文本
func TestSplitEmptyText(t *testing.T) {
	splitter := NewTextSplitter(DefaultSplitterConfig())

	chunks, err := splitter.Split("   \n\n  ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

// TestSplitMaxChunks 测试最大块数限制
func TestSplitMaxChunks(t *testing.T) {
	splitter := NewTextSplitter(SplitterConfig{
		SplitType: ByParagraph,
		ChunkSize: 100,
		MaxChunks: 2,
	})

	text := "一。\n\n二。\n\n三。\n\n四。"
	chunks, err := splitter.Split(text)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

// TestSplitUnknownType 测试未知切分策略
func TestSplitUnknownType(t *testing.T) {
	splitter := NewTextSplitter(SplitterConfig{
		SplitType: "unknown",
		ChunkSize: 100,
	})

	_, err := splitter.Split("一些文本")
	assert.Error(t, err)
}

// TestSplitterConfigNormalization 测试配置的规范化
func TestSplitterConfigNormalization(t *testing.T) {
	// 重叠大于块大小时自动调整
	splitter := NewTextSplitter(SplitterConfig{
		SplitType:    ByLength,
		ChunkSize:    10,
		ChunkOverlap: 20,
	})

	chunks, err := splitter.Split(strings.Repeat("x", 30))
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

// TestOverlapTail 测试重叠尾部提取
func TestOverlapTail(t *testing.T) {
	// 在词边界截断
	tail := overlapTail("the quick brown fox", 9)
	assert.Equal(t, "fox", tail)

	// 文本短于重叠长度时返回全文
	tail = overlapTail("short", 10)
	assert.Equal(t, "short", tail)
}
