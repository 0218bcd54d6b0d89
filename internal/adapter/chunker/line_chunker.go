package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/domain"
	"github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/port"
)

// LineChunker packs whole lines into chunks of at most maxTokens, carrying
// roughly overlap tokens of trailing lines into the next chunk.
type LineChunker struct {
	maxTokens int
	overlap   int
	tokenizer port.Tokenizer
}

func NewLineChunker(maxTokens, overlap int, tokenizer port.Tokenizer) *LineChunker {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = 0
	}
	return &LineChunker{
		maxTokens: maxTokens,
		overlap:   overlap,
		tokenizer: tokenizer,
	}
}

// Chunk splits content from source. Chunks with no visible text are dropped.
func (c *LineChunker) Chunk(source string, content string) ([]domain.Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	lines := strings.Split(content, "\n")

	var chunks []domain.Chunk
	startLine := 0

	for startLine < len(lines) {
		endLine := startLine
		currentTokens := 0
		var chunkText strings.Builder

		for endLine < len(lines) {
			lineText := lines[endLine]
			lineTokens := c.tokenizer.CountTokens(lineText)

			if currentTokens > 0 && currentTokens+lineTokens > c.maxTokens {
				break
			}

			if chunkText.Len() > 0 {
				chunkText.WriteString("\n")
			}
			chunkText.WriteString(lineText)
			currentTokens += lineTokens
			endLine++
		}

		text := chunkText.String()
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, domain.Chunk{
				ID:   generateChunkID(source, startLine, endLine),
				Text: text,
				Metadata: map[string]any{
					"source":      source,
					"chunk_index": len(chunks),
					"start_line":  startLine + 1,
					"end_line":    endLine,
				},
			})
		}

		if endLine >= len(lines) {
			break
		}

		newStart := endLine - c.calculateOverlapLines(lines, startLine, endLine)
		if newStart <= startLine {
			newStart = startLine + 1
		}
		startLine = newStart
	}

	return chunks, nil
}

func (c *LineChunker) calculateOverlapLines(lines []string, start, end int) int {
	if c.overlap == 0 {
		return 0
	}

	overlapLines := 0
	tokens := 0

	for i := end - 1; i >= start && tokens < c.overlap; i-- {
		tokens += c.tokenizer.CountTokens(lines[i])
		overlapLines++
	}

	return overlapLines
}

func generateChunkID(source string, startLine, endLine int) string {
	data := fmt.Sprintf("%s:%d-%d", source, startLine, endLine)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
