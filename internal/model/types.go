package model

// Chunk — единица поиска: нормализованный фрагмент документа с вектором
type Chunk struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenant_id"`
	FileID   string    `json:"file_id"`
	Source   string    `json:"source"`
	Page     *int      `json:"page"`
	Section  *string   `json:"section"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"-"`
	Hash     string    `json:"hash"`
}

// QueryResult — результат поиска, не сохраняется.
// Score монотонен косинусной близости, шкала зависит от бэкенда.
type QueryResult struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	Source  string  `json:"source"`
	FileID  string  `json:"file_id"`
	Page    *int    `json:"page"`
	Section *string `json:"section"`
	Score   float64 `json:"score"`
}

type Citation struct {
	FileID  string `json:"file_id"`
	Page    *int   `json:"page"`
	Snippet string `json:"snippet"`
}

type Cost struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	USD          float64 `json:"usd"`
}

type IngestResult struct {
	Tenant     string `json:"tenant"`
	FileID     string `json:"file_id"`
	ChunkCount int    `json:"chunk_count"`
	Upserted   int    `json:"upserted"`
}

type Answer struct {
	Answer  string     `json:"answer"`
	Sources []Citation `json:"sources"`
	Cost    Cost       `json:"cost"`
}

type AskRequest struct {
	Question string `json:"question"`
	TenantID string `json:"tenant_id,omitempty"`
	K        int    `json:"k,omitempty"`
}
