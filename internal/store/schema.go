package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements — расширение, таблица и индексы для pgvector.
// Размерность фиксируется при создании таблицы.
func schemaStatements(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			file_id TEXT NOT NULL,
			source TEXT,
			page INTEGER,
			section TEXT,
			text TEXT NOT NULL,
			hash TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, dim),
		`CREATE INDEX IF NOT EXISTS chunks_tenant_idx ON chunks (tenant_id)`,
		`DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_class c
				JOIN pg_namespace n ON n.oid=c.relnamespace
				WHERE c.relname='chunks_embedding_hnsw_idx'
			) THEN
				EXECUTE 'CREATE INDEX chunks_embedding_hnsw_idx ON chunks USING hnsw (embedding vector_cosine_ops)';
			END IF;
		END $$;`,
	}
}

// ensureSchema идемпотентна: все операторы IF NOT EXISTS
func ensureSchema(ctx context.Context, db *sql.DB, dim int) error {
	for _, s := range schemaStatements(dim) {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// tableDim читает размерность колонки embedding (atttypmod у vector = dim)
func tableDim(ctx context.Context, db *sql.DB) (int, error) {
	var dim int
	err := db.QueryRowContext(ctx, `
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = 'chunks' AND a.attname = 'embedding'
	`).Scan(&dim)
	return dim, err
}
