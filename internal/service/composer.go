package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/katakuxiko/ragdocs/internal/cost"
	"github.com/katakuxiko/ragdocs/internal/logger"
	"github.com/katakuxiko/ragdocs/internal/model"
	"github.com/katakuxiko/ragdocs/internal/util"
)

const (
	snippetRunes    = 160
	pagePlaceholder = "?"
	systemPrompt    = "Ты помощник по документам. Отвечай только на основе контекста. " +
		"Указывай источники в формате [file_id p.page]. " +
		"Если в контексте нет ответа, так и скажи."
)

// Completer — сервис генерации ответа
type Completer interface {
	Complete(ctx context.Context, msgs []openai.ChatCompletionMessage) (Completion, error)
	ChatModel() string
}

// AnswerComposer собирает контекст, вызывает модель и считает цитаты и стоимость
type AnswerComposer struct {
	llm    Completer
	prices cost.Table
	log    *logger.Logger
}

func NewAnswerComposer(llm Completer, prices cost.Table, log *logger.Logger) *AnswerComposer {
	if prices == nil {
		prices = cost.DefaultPrices()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AnswerComposer{llm: llm, prices: prices, log: log.With("service", "AnswerComposer")}
}

// Compose ожидает hits по убыванию score. Цитаты — по одной на каждый
// найденный чанк, независимо от того, сослалась ли на него модель.
func (c *AnswerComposer) Compose(ctx context.Context, question string, hits []model.QueryResult) (model.Answer, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Context:\n%s\n---\nQuestion: %s", BuildContext(hits), question)},
	}
	out, err := c.llm.Complete(ctx, msgs)
	if err != nil {
		return model.Answer{}, err
	}

	usage := c.prices.Estimate(c.llm.ChatModel(), out.PromptTokens, out.CompletionTokens)
	c.log.Debug("answer composed", "hits", len(hits), "prompt_tokens", usage.InputTokens, "completion_tokens", usage.OutputTokens, "usd", usage.USD)
	return model.Answer{
		Answer:  out.Text,
		Sources: Citations(hits),
		Cost:    usage,
	}, nil
}

// BuildContext — фрагменты "[file_id p.page] text" через пустую строку
func BuildContext(hits []model.QueryResult) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, "["+h.FileID+" p."+pageLabel(h.Page)+"] "+h.Text)
	}
	return strings.Join(parts, "\n\n")
}

func Citations(hits []model.QueryResult) []model.Citation {
	out := make([]model.Citation, 0, len(hits))
	for _, h := range hits {
		out = append(out, model.Citation{
			FileID:  h.FileID,
			Page:    h.Page,
			Snippet: util.TruncateRunes(h.Text, snippetRunes),
		})
	}
	return out
}

func pageLabel(p *int) string {
	if p == nil {
		return pagePlaceholder
	}
	return strconv.Itoa(*p)
}
