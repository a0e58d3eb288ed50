package healthdb

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/civictrack/civictrack-service/internal/platform/db"
)

type PostgresPinger struct {
	db *sqlx.DB
}

func NewPostgresPinger(dbx *sqlx.DB) PostgresPinger {
	return PostgresPinger{db: dbx}
}

func (p PostgresPinger) Ping(ctx context.Context) error {
	return db.StatusCheck(ctx, p.db)
}
