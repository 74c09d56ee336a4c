package cost

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/katakuxiko/ragdocs/internal/model"
)

// Price — стоимость одного токена в USD
type Price struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table — цены по имени модели (или деплоймента Azure)
type Table map[string]Price

// DefaultPrices — встроенная таблица; файл PRICES_FILE дополняет её
func DefaultPrices() Table {
	return Table{
		"text-embedding-3-large": {Input: 0.00002},
		"gpt-4o-mini":            {Input: 0.000005, Output: 0.000015},
	}
}

// LoadPriceTable читает YAML вида
//
//	gpt-4o-mini:
//	  input: 0.000005
//	  output: 0.000015
//
// и накладывает его поверх DefaultPrices. Пустой path — только дефолты.
func LoadPriceTable(path string) (Table, error) {
	t := DefaultPrices()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price table: %w", err)
	}
	var override Table
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("parse price table %s: %w", path, err)
	}
	for name, p := range override {
		if p.Input < 0 || p.Output < 0 {
			return nil, fmt.Errorf("price table %s: negative price for %q", path, name)
		}
		t[name] = p
	}
	return t, nil
}

// Estimate — стоимость вызова; неизвестная модель стоит 0
func (t Table) Estimate(modelName string, inputTokens, outputTokens int) model.Cost {
	p := t[modelName]
	usd := float64(inputTokens)*p.Input + float64(outputTokens)*p.Output
	return model.Cost{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		USD:          math.Round(usd*1e6) / 1e6,
	}
}
