package ingest

import (
	"fmt"

	"github.com/katakuxiko/ragdocs/internal/config"
)

// ErrInvalidChunking — overlap >= maxTokens даёт вырожденный шаг окна
var ErrInvalidChunking = fmt.Errorf("%w: chunking parameters", config.ErrInvalid)

// Chunker режет текст на перекрывающиеся окна токенов
type Chunker struct {
	tok       Tokenizer
	maxTokens int
	overlap   int
}

func NewChunker(tok Tokenizer, maxTokens, overlap int) (*Chunker, error) {
	if tok == nil {
		return nil, fmt.Errorf("%w: tokenizer is required", ErrInvalidChunking)
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidChunking, maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidChunking, maxTokens, overlap)
	}
	return &Chunker{tok: tok, maxTokens: maxTokens, overlap: overlap}, nil
}

// Chunk возвращает окна в порядке следования.
// Окно i начинается с токена i*(maxTokens-overlap); окно, дошедшее до конца
// потока, последнее и может быть короче maxTokens. Пустой текст — nil.
func (c *Chunker) Chunk(text string) []string {
	tokens := c.tok.Encode(text)
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, 0, WindowCount(len(tokens), c.maxTokens, c.overlap))
	for _, w := range Windows(len(tokens), c.maxTokens, c.overlap) {
		out = append(out, c.tok.Decode(tokens[w[0]:w[1]]))
	}
	return out
}

// Windows возвращает полуоткрытые диапазоны [start, end) токенов.
// Параметры должны пройти проверку NewChunker.
func Windows(n, maxTokens, overlap int) [][2]int {
	step := maxTokens - overlap
	var out [][2]int
	for start := 0; start < n; start += step {
		end := start + maxTokens
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
		if end == n {
			break
		}
	}
	return out
}

// WindowCount — число окон для n токенов без самой нарезки
func WindowCount(n, maxTokens, overlap int) int {
	if n == 0 {
		return 0
	}
	if n <= maxTokens {
		return 1
	}
	step := maxTokens - overlap
	return (n - overlap + step - 1) / step
}
