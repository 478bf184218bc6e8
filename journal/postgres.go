package journal

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	_ "github.com/uptrace/bun/driver/pgdriver"
)

type (
	// Postgres stores submissions through Bun.
	Postgres struct {
		db *bun.DB
	}
)

// NewPostgres wraps an established database connection.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: bun.NewDB(db, pgdialect.New())}
}

// Add inserts a submission record.
func (p *Postgres) Add(ctx context.Context, sub *Submission) error {
	_, err := p.db.NewInsert().Model(sub).Exec(ctx)
	return err
}

// All retrieves a paginated list of recorded submissions, newest first.
func (p *Postgres) All(ctx context.Context, offset, limit int) ([]*Submission, int, error) {
	var subs []*Submission
	query := p.db.NewSelect().Model(&subs)
	query = query.Order("submitted_at DESC")
	query = query.Offset(offset)
	query = query.Limit(limit)

	count, err := query.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}

	return subs, count, nil
}

// BySender retrieves all submissions recorded for one sender, newest first.
func (p *Postgres) BySender(ctx context.Context, from string) ([]*Submission, error) {
	var subs []*Submission
	err := p.db.NewSelect().Model(&subs).
		Where("from_addr = ?", from).
		Order("submitted_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return subs, nil
}
