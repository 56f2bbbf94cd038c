package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"ai-detector/api/internal/detect/types"
)

var ErrNotFound = sql.ErrNoRows

const schema = `
create table if not exists analysis_cache (
  image_hash  text        not null,
  engine      text        not null,
  model       text        not null,
  result_json jsonb       not null,
  is_ai       boolean     not null,
  confidence  integer     not null,
  created_at  timestamptz not null default now(),
  primary key (image_hash, engine, model)
)`

// AnalysisRepo - кэш вердиктов. Ключ: (image_hash, engine, model).
type AnalysisRepo struct {
	DB *sql.DB
	// MaxAge > 0 - записи старше считаются отсутствующими.
	MaxAge time.Duration
}

func NewAnalysisRepo(db *sql.DB, maxAge time.Duration) *AnalysisRepo {
	return &AnalysisRepo{DB: db, MaxAge: maxAge}
}

func (r *AnalysisRepo) Migrate(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	return err
}

// Find возвращает сохранённый вердикт или ErrNotFound.
func (r *AnalysisRepo) Find(ctx context.Context, imageHash, engine, model string) (types.AnalysisResult, error) {
	const q = `select result_json, created_at
	           from analysis_cache
	           where image_hash=$1 and engine=$2 and model=$3`
	var (
		js []byte
		ts time.Time
	)
	if err := r.DB.QueryRowContext(ctx, q, imageHash, engine, model).Scan(&js, &ts); err != nil {
		return types.AnalysisResult{}, err
	}
	if r.MaxAge > 0 && time.Since(ts) > r.MaxAge {
		return types.AnalysisResult{}, ErrNotFound
	}
	var res types.AnalysisResult
	if err := json.Unmarshal(js, &res); err != nil {
		// битая запись - как будто её нет
		return types.AnalysisResult{}, ErrNotFound
	}
	return res, nil
}

func (r *AnalysisRepo) Upsert(ctx context.Context, imageHash, engine, model string, res types.AnalysisResult) error {
	js, err := json.Marshal(res)
	if err != nil {
		return err
	}
	const q = `
insert into analysis_cache(image_hash, engine, model, result_json, is_ai, confidence)
values ($1,$2,$3,$4,$5,$6)
on conflict (image_hash, engine, model)
do update set result_json=excluded.result_json,
              is_ai=excluded.is_ai,
              confidence=excluded.confidence,
              created_at=now()`
	_, err = r.DB.ExecContext(ctx, q, imageHash, engine, model, js, res.IsAIGenerated, res.ConfidenceScore)
	return err
}

// PurgeOlderThan удаляет старые записи, чтобы не раздувать БД.
func (r *AnalysisRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	const q = `delete from analysis_cache where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
