package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"pdf-chat/internal/config"
)

// ErrNotFound is returned when a document record does not exist.
var ErrNotFound = errors.New("document not found")

// Document is the record created for every uploaded file.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            string    `bun:"id,pk" json:"id"`
	Name          string    `bun:"name,notnull" json:"name"`
	Size          int64     `bun:"size,notnull" json:"size"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"createdAt"`
}

func NewDB(sqldb *sql.DB, driver string, debug bool) *bun.DB {
	var db *bun.DB
	if driver == "sqlite" {
		db = bun.NewDB(sqldb, sqlitedialect.New())
	} else {
		db = bun.NewDB(sqldb, pgdialect.New())
	}
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the configured driver. Postgres goes through pgdriver by
// default, lib/pq is kept for DSNs that rely on its connection parameters.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is required")
	}
	switch cfg.Driver {
	case "pgdriver":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	case "pq":
		return sql.Open("postgres", cfg.DSN)
	case "sqlite":
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, err
		}
		// a single connection keeps in-memory databases alive and serializes writers
		sqldb.SetMaxOpenConns(1)
		return sqldb, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	_, err := db.NewCreateIndex().
		Model((*Document)(nil)).
		Index("documents_created_at_idx").
		IfNotExists().
		Column("created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create documents index: %w", err)
	}
	return nil
}

// DocumentRepo reads and writes document records.
type DocumentRepo struct {
	db  *bun.DB
	now func() time.Time
}

func NewDocumentRepo(db *bun.DB) *DocumentRepo {
	return &DocumentRepo{db: db, now: time.Now}
}

func (r *DocumentRepo) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.now().UTC()
	}
	_, err := r.db.NewInsert().Model(doc).Exec(ctx)
	return err
}

func (r *DocumentRepo) GetDocument(ctx context.Context, id string) (*Document, error) {
	doc := new(Document)
	err := r.db.NewSelect().Model(doc).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepo) DocumentExists(ctx context.Context, id string) (bool, error) {
	return r.db.NewSelect().Model((*Document)(nil)).Where("id = ?", id).Exists(ctx)
}

// ListDocuments returns every record, newest first.
func (r *DocumentRepo) ListDocuments(ctx context.Context) ([]Document, error) {
	docs := make([]Document, 0)
	err := r.db.NewSelect().Model(&docs).OrderExpr("created_at DESC").Scan(ctx)
	return docs, err
}

func (r *DocumentRepo) DeleteDocument(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().Model((*Document)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
