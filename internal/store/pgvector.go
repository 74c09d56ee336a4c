package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/katakuxiko/ragdocs/internal/config"
	"github.com/katakuxiko/ragdocs/internal/logger"
	"github.com/katakuxiko/ragdocs/internal/model"
)

// PgStore — локальный бэкенд на Postgres + pgvector
type PgStore struct {
	db  *sql.DB
	dim int
	log *logger.Logger

	mu    sync.Mutex
	ready bool
}

func NewPgStore(ctx context.Context, conn string, dim int, log *logger.Logger) (*PgStore, error) {
	if strings.TrimSpace(conn) == "" {
		return nil, fmt.Errorf("%w: PG_CONN is required for pgvector backend", config.ErrInvalid)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: vector dimension must be positive", config.ErrInvalid)
	}
	// sql.Open не ходит в сеть; соединение появится на первом запросе
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, fmt.Errorf("%w: PG_CONN: %v", config.ErrInvalid, err)
	}
	return NewPgStoreFromDB(db, dim, log), nil
}

func NewPgStoreFromDB(db *sql.DB, dim int, log *logger.Logger) *PgStore {
	if log == nil {
		log = logger.Nop()
	}
	return &PgStore{db: db, dim: dim, log: log.With("service", "PgVectorStore")}
}

func (s *PgStore) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := ensureSchema(ctx, s.db, s.dim); err != nil {
		return err
	}
	got, err := tableDim(ctx, s.db)
	if err != nil {
		return fmt.Errorf("read embedding dimension: %w", err)
	}
	if got > 0 && got != s.dim {
		return fmt.Errorf("%w: table chunks has %d dimensions, expected %d", ErrDimensionMismatch, got, s.dim)
	}
	s.ready = true
	return nil
}

// Upsert пишет построчно: отказ одной строки логируется и не прерывает батч.
// Потеря соединения или отмена контекста прерывают батч ошибкой;
// если не записана ни одна строка — тоже ошибка.
func (s *PgStore) Upsert(ctx context.Context, chunks []model.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := validateChunks(s.dim, chunks); err != nil {
		return 0, err
	}
	if err := s.ensure(ctx); err != nil {
		return 0, err
	}

	var (
		saved   int
		lastErr error
	)
	for _, ch := range chunks {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO chunks (id, tenant_id, file_id, source, page, section, text, hash, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				tenant_id = EXCLUDED.tenant_id,
				file_id = EXCLUDED.file_id,
				source = EXCLUDED.source,
				page = EXCLUDED.page,
				section = EXCLUDED.section,
				text = EXCLUDED.text,
				hash = EXCLUDED.hash,
				embedding = EXCLUDED.embedding
		`, ch.ID, ch.TenantID, ch.FileID, ch.Source, nullInt(ch.Page), nullString(ch.Section), ch.Text, ch.Hash, pgvector.NewVector(ch.Vector))
		if err != nil {
			if connLost(ctx, err) {
				return saved, opErr(BackendPgVector, "upsert", OpErrTransport, fmt.Sprintf("aborted after %d of %d rows", saved, len(chunks)), err)
			}
			s.log.Warn("db upsert error", "id", ch.ID, "error", err)
			lastErr = err
			continue
		}
		saved++
	}
	if saved == 0 {
		return 0, opErr(BackendPgVector, "upsert", OpErrRejected, fmt.Sprintf("all %d rows rejected", len(chunks)), lastErr)
	}
	if saved < len(chunks) {
		s.log.Warn("partial upsert", "upserted", saved, "total", len(chunks))
	} else {
		s.log.Info("chunks upserted", "upserted", saved, "total", len(chunks))
	}
	return saved, nil
}

func (s *PgStore) Search(ctx context.Context, vec []float32, tenantID string, topK int) ([]model.QueryResult, error) {
	if err := checkDim(s.dim, vec, "query vector"); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, text, COALESCE(source, ''), file_id, page, section,
			1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE tenant_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(vec), tenantID, topK)
	if err != nil {
		return nil, opErr(BackendPgVector, "search", OpErrTransport, "query failed", err)
	}
	defer rows.Close()

	var hits []scoredHit
	for rows.Next() {
		var (
			h       scoredHit
			page    sql.NullInt64
			section sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.tenantID, &h.Text, &h.Source, &h.FileID, &page, &section, &h.Score); err != nil {
			return nil, err
		}
		if page.Valid {
			p := int(page.Int64)
			h.Page = &p
		}
		if section.Valid {
			sec := section.String
			h.Section = &sec
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return finalize(s.log, tenantID, topK, hits), nil
}

func (s *PgStore) Close() error {
	return s.db.Close()
}

// connLost — ошибка уровня соединения, а не отказ конкретной строки
func connLost(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
