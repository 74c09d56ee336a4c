package ingest

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Tokenizer — фиксированный subword-токенизатор для нарезки окон
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

const defaultEncoding = "cl100k_base"

var loaderOnce sync.Once

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewCL100K загружает cl100k_base из встроенных BPE-файлов, без сети
func NewCL100K() (Tokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", defaultEncoding, err)
	}
	return &tiktokenTokenizer{enc: enc}, nil
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	// special-токены в пользовательском тексте кодируются как обычный текст
	return t.enc.EncodeOrdinary(text)
}

func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
