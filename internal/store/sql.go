package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // драйвер pgx для database/sql
)

// PostgresRepository хранит ссылки в PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository подключается по DSN, проверяет соединение и создаёт таблицу
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := InitDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &PostgresRepository{db: db}, nil
}

// InitDB создаёт таблицу ссылок, если её нет
func InitDB(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS short_links (
		code         VARCHAR(16) PRIMARY KEY,
		original_url TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		hit_count    BIGINT NOT NULL DEFAULT 0
	);
	`
	_, err := db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// InsertIfAbsent см. Repository. Уникальность кода держит PRIMARY KEY
func (p *PostgresRepository) InsertIfAbsent(ctx context.Context, link ShortLink) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO short_links (code, original_url, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO NOTHING
	`, link.Code, link.OriginalURL, link.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert link: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert link: %w", err)
	}
	return n == 1, nil
}

// IncrementHits см. Repository
func (p *PostgresRepository) IncrementHits(ctx context.Context, code string) (string, error) {
	var originalURL string

	err := p.db.QueryRowContext(ctx, `
		UPDATE short_links SET hit_count = hit_count + 1
		WHERE code = $1
		RETURNING original_url
	`, code).Scan(&originalURL)

	switch {
	case err == nil:
		return originalURL, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrLinkNotFound
	default:
		return "", fmt.Errorf("failed to resolve link: %w", err)
	}
}

// Get см. Repository
func (p *PostgresRepository) Get(ctx context.Context, code string) (ShortLink, error) {
	link := ShortLink{Code: code}

	err := p.db.QueryRowContext(ctx,
		`SELECT original_url, created_at, hit_count FROM short_links WHERE code = $1`,
		code,
	).Scan(&link.OriginalURL, &link.CreatedAt, &link.HitCount)

	switch {
	case err == nil:
		return link, nil
	case errors.Is(err, sql.ErrNoRows):
		return ShortLink{}, ErrLinkNotFound
	default:
		return ShortLink{}, fmt.Errorf("failed to read link: %w", err)
	}
}

// Count см. Repository
func (p *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM short_links`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count links: %w", err)
	}
	return n, nil
}

// Ping проверяет соединение с БД
func (p *PostgresRepository) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close закрывает пул соединений
func (p *PostgresRepository) Close() error {
	return p.db.Close()
}
