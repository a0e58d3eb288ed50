// Package txrunner binds the issue repositories and the outbox into a
// single transaction scope for the application service.
package txrunner

import (
	"context"
	"database/sql"

	appissues "github.com/civictrack/civictrack-service/internal/app/issues"
	issuesdb "github.com/civictrack/civictrack-service/internal/platform/db/issues"
	outboxdb "github.com/civictrack/civictrack-service/internal/platform/db/outbox"
	"github.com/civictrack/civictrack-service/internal/platform/db/uow"
)

type IssuesTxRunner struct {
	u *uow.UnitOfWork
}

func NewIssuesTxRunner(u *uow.UnitOfWork) *IssuesTxRunner {
	return &IssuesTxRunner{u: u}
}

func (r *IssuesTxRunner) WithinTx(
	ctx context.Context,
	fn func(ctx context.Context, repo appissues.TxRepository, outbox appissues.OutboxRepository) error) error {
	return r.u.WithinTxRoot(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(sc uow.Scope) error {
		repo := issuesdb.New(sc.Executor())
		ob := outboxdb.New(sc.Executor())
		return fn(ctx, repo, ob)
	})
}
