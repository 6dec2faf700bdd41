// Package db keeps ingested chunk records in Postgres as an alternative chunk source.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"textbook-rag/internal/config"
	"textbook-rag/internal/models"
)

type ChunkRow struct {
	bun.BaseModel `bun:"table:textbook_chunks,alias:c"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Book      string    `bun:"book,notnull"`
	Position  int       `bun:"position,notnull"`
	Chapter   string    `bun:"chapter,notnull"`
	Page      int       `bun:"page,notnull"`
	Text      string    `bun:"text,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func ConnectDB(cfg *config.DatabaseConfig) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// Open connects to the configured database and makes sure the schema exists.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*bun.DB, error) {
	db := NewDB(ConnectDB(cfg), cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := InitDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func InitDB(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().Model((*ChunkRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create chunk table: %w", err)
	}
	_, err := db.NewCreateIndex().
		Model((*ChunkRow)(nil)).
		Index("textbook_chunks_book_idx").
		Column("book", "position").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create chunk index: %w", err)
	}
	return nil
}

// StoreChunks replaces every stored record of book with recs.
func StoreChunks(ctx context.Context, db *bun.DB, book string, recs []models.ChunkRecord) error {
	rows := toRows(book, recs)
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*ChunkRow)(nil)).Where("book = ?", book).Exec(ctx); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("store chunks of %s: %w", book, err)
	}
	log.Info().Str("book", book).Int("chunks", len(rows)).Msg("Stored chunks")
	return nil
}

// LoadChunks returns every stored chunk ordered by book, then by position within the book.
func LoadChunks(ctx context.Context, db bun.IDB) ([]models.Chunk, error) {
	var rows []ChunkRow
	err := db.NewSelect().
		Model(&rows).
		Order("book ASC", "position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	return toChunks(rows), nil
}

func DropChunks(ctx context.Context, db bun.IDB) error {
	if _, err := dropChunksQuery(db).Exec(ctx); err != nil {
		return fmt.Errorf("drop chunk table: %w", err)
	}
	return nil
}

// ResetChunks drops every stored chunk and recreates the empty schema.
func ResetChunks(ctx context.Context, db bun.IDB) error {
	if err := DropChunks(ctx, db); err != nil {
		return err
	}
	log.Info().Msg("Dropped stored chunks")
	return InitDB(ctx, db)
}

func dropChunksQuery(db bun.IDB) *bun.DropTableQuery {
	return db.NewDropTable().Model((*ChunkRow)(nil)).IfExists()
}

func toRows(book string, recs []models.ChunkRecord) []ChunkRow {
	rows := make([]ChunkRow, 0, len(recs))
	for i, r := range recs {
		rows = append(rows, ChunkRow{
			Book:     book,
			Position: i,
			Chapter:  r.ChapterTitle,
			Page:     r.PageNum,
			Text:     r.ChunkText,
		})
	}
	return rows
}

func toChunks(rows []ChunkRow) []models.Chunk {
	chunks := make([]models.Chunk, 0, len(rows))
	for i, r := range rows {
		chunks = append(chunks, models.Chunk{
			ID:           i,
			Text:         r.Text,
			ChapterTitle: r.Chapter,
			PageNumber:   r.Page,
			SourceBook:   r.Book,
		})
	}
	return chunks
}
