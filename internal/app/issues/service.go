// Package issues wires the issue domain to its storage, cache and
// outbox collaborators. Handlers talk to the Service; the Service hands
// fully-materialized snapshots to the pure domain filters.
package issues

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/civictrack/civictrack-service/internal/domain/geo"
	"github.com/civictrack/civictrack-service/internal/domain/issues"
	"github.com/civictrack/civictrack-service/internal/errs"
)

// ListQuery is the store-level push-down for feed fetches. Hidden
// issues are excluded unless IncludeHidden is set; the domain filter
// re-checks the hidden bit as defense in depth.
type ListQuery struct {
	Category      issues.Category
	Status        issues.Status
	IncludeHidden bool
}

type Stats struct {
	Total      int
	Reported   int
	InProgress int
	Resolved   int
	Rejected   int
	Flagged    int
	ByCategory map[issues.Category]int
}

type Detail struct {
	Issue    issues.Issue
	History  []issues.StatusChange
	Comments []issues.Comment
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (issues.Issue, error)
	List(ctx context.Context, q ListQuery) ([]issues.Issue, error)
	ListByReporter(ctx context.Context, reporterID uuid.UUID) ([]issues.Issue, error)
	ListFlagged(ctx context.Context) ([]issues.Issue, error)
	History(ctx context.Context, issueID uuid.UUID) ([]issues.StatusChange, error)
	ListComments(ctx context.Context, issueID uuid.UUID) ([]issues.Comment, error)
	InsertComment(ctx context.Context, issueID uuid.UUID, c issues.NewComment) (issues.Comment, error)
	Stats(ctx context.Context) (Stats, error)
}

// TxRepository covers the writes that must land together with their
// status-history rows and outbox events.
type TxRepository interface {
	Insert(ctx context.Context, n issues.NewIssue) (issues.Issue, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status issues.Status) (issues.Issue, error)
	AppendStatus(ctx context.Context, issueID uuid.UUID, status issues.Status, note string, changedBy *uuid.UUID) error
	InsertFlag(ctx context.Context, issueID uuid.UUID, f issues.NewFlag) (issues.Issue, error)
	SetHidden(ctx context.Context, id uuid.UUID, hidden bool) (issues.Issue, error)
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, eventType string, payloadJSON string) error
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo TxRepository, outbox OutboxRepository) error) error
}

// Invalidator is implemented by the caching repository decorator; the
// service drops cached lists after every successful write.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type Service struct {
	repo Repository
	tx   TxRunner
}

func NewService(repo Repository, tx TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

// List fetches a snapshot from the store and applies the feed filter.
// The owner view is fetched by reporter id directly and is never
// geofenced; everything else goes through the public list with hidden
// issues excluded at the store.
func (s *Service) List(ctx context.Context, c issues.FilterCriteria) ([]issues.Issue, error) {
	const op = "issues.service.list"

	var (
		snapshot []issues.Issue
		err      error
	)
	if c.ReporterID != nil {
		snapshot, err = s.repo.ListByReporter(ctx, *c.ReporterID)
	} else {
		snapshot, err = s.repo.List(ctx, ListQuery{Category: c.Category, Status: c.Status})
	}
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	out, err := issues.Apply(snapshot, c)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (Detail, error) {
	const op = "issues.service.get_by_id"

	is, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Detail{}, errs.Wrap(op, err)
	}

	history, err := s.repo.History(ctx, id)
	if err != nil {
		return Detail{}, errs.Wrap(op, err)
	}

	comments, err := s.repo.ListComments(ctx, id)
	if err != nil {
		return Detail{}, errs.Wrap(op, err)
	}

	return Detail{Issue: is, History: history, Comments: comments}, nil
}

// Create inserts the issue, its initial status-history row and the
// issue_reported outbox event in one transaction.
func (s *Service) Create(ctx context.Context, n issues.NewIssue) (issues.Issue, error) {
	const op = "issues.service.create"

	if err := n.Validate(); err != nil {
		return issues.Issue{}, errs.Wrap(op, err)
	}

	var created issues.Issue
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repo TxRepository, outbox OutboxRepository) error {
		var err error
		created, err = repo.Insert(ctx, n)
		if err != nil {
			return errs.Wrap(op+".insert", err)
		}

		if err := repo.AppendStatus(ctx, created.ID, issues.StatusReported, "Issue reported by citizen", n.ReporterID); err != nil {
			return errs.Wrap(op+".append_status", err)
		}

		return enqueueEvent(ctx, outbox, issues.EventIssueReported, issues.IssueReported{
			IssueID:    created.ID,
			Title:      created.Title,
			Category:   created.Category,
			Location:   created.Location,
			OccurredAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return issues.Issue{}, errs.Wrap(op, err)
	}

	s.invalidate(ctx)
	return created, nil
}

// UpdateStatus is the admin transition: the intended lifecycle is
// forward-only but, as in the original system, any known status is
// accepted and the change is recorded in the history.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, u issues.StatusUpdate) (issues.Issue, error) {
	const op = "issues.service.update_status"

	if err := u.Validate(); err != nil {
		return issues.Issue{}, errs.Wrap(op, err)
	}

	note := u.Note
	if note == "" {
		note = "Status changed to " + string(u.Status)
	}

	var updated issues.Issue
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repo TxRepository, outbox OutboxRepository) error {
		var err error
		updated, err = repo.UpdateStatus(ctx, id, u.Status)
		if err != nil {
			return errs.Wrap(op+".update", err)
		}

		if err := repo.AppendStatus(ctx, id, u.Status, note, u.ChangedBy); err != nil {
			return errs.Wrap(op+".append_status", err)
		}

		return enqueueEvent(ctx, outbox, issues.EventStatusChanged, issues.StatusChanged{
			IssueID:    updated.ID,
			Title:      updated.Title,
			Status:     updated.Status,
			Note:       note,
			OccurredAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return issues.Issue{}, errs.Wrap(op, err)
	}

	s.invalidate(ctx)
	return updated, nil
}

// Flag records a moderation flag and bumps the flag count; reaching
// AutoHideThreshold hides the issue in the same transaction.
func (s *Service) Flag(ctx context.Context, id uuid.UUID, f issues.NewFlag) (issues.Issue, error) {
	const op = "issues.service.flag"

	if err := f.Validate(); err != nil {
		return issues.Issue{}, errs.Wrap(op, err)
	}

	var flagged issues.Issue
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repo TxRepository, _ OutboxRepository) error {
		var err error
		flagged, err = repo.InsertFlag(ctx, id, f)
		if err != nil {
			return errs.Wrap(op+".insert_flag", err)
		}

		if flagged.FlagCount >= issues.AutoHideThreshold && !flagged.IsHidden {
			flagged, err = repo.SetHidden(ctx, id, true)
			if err != nil {
				return errs.Wrap(op+".auto_hide", err)
			}
		}
		return nil
	})
	if err != nil {
		return issues.Issue{}, errs.Wrap(op, err)
	}

	s.invalidate(ctx)
	return flagged, nil
}

// SetHidden is the moderator visibility toggle.
func (s *Service) SetHidden(ctx context.Context, id uuid.UUID, hidden bool) (issues.Issue, error) {
	const op = "issues.service.set_hidden"

	var updated issues.Issue
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repo TxRepository, _ OutboxRepository) error {
		var err error
		updated, err = repo.SetHidden(ctx, id, hidden)
		return err
	})
	if err != nil {
		return issues.Issue{}, errs.Wrap(op, err)
	}

	s.invalidate(ctx)
	return updated, nil
}

func (s *Service) AddComment(ctx context.Context, issueID uuid.UUID, c issues.NewComment) (issues.Comment, error) {
	const op = "issues.service.add_comment"

	if err := c.Validate(); err != nil {
		return issues.Comment{}, errs.Wrap(op, err)
	}

	out, err := s.repo.InsertComment(ctx, issueID, c)
	if err != nil {
		return issues.Comment{}, errs.Wrap(op, err)
	}
	return out, nil
}

// Similar supports duplicate detection before submitting a report.
func (s *Service) Similar(ctx context.Context, category issues.Category, loc *geo.Coordinate, excludeID *uuid.UUID, radiusKm float64) ([]issues.Issue, error) {
	const op = "issues.service.similar"

	if !category.Valid() {
		return nil, errs.E(errs.KindInvalid, "CATEGORY_INVALID", op, "invalid category",
			map[string]string{"category": "is not a known category"}, nil)
	}
	if loc != nil {
		if err := loc.Validate(op); err != nil {
			return nil, err
		}
	}

	snapshot, err := s.repo.List(ctx, ListQuery{Category: category})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	out, err := issues.FindSimilar(snapshot, category, loc, excludeID, radiusKm)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	return out, nil
}

func (s *Service) ListFlagged(ctx context.Context) ([]issues.Issue, error) {
	const op = "issues.service.list_flagged"

	out, err := s.repo.ListFlagged(ctx)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	return out, nil
}

// ListByCategory is the admin per-category view. Hidden issues are
// included deliberately: moderation needs to see what it hid.
func (s *Service) ListByCategory(ctx context.Context, category issues.Category) ([]issues.Issue, error) {
	const op = "issues.service.list_by_category"

	if !category.Valid() {
		return nil, errs.E(errs.KindInvalid, "CATEGORY_INVALID", op, "invalid category",
			map[string]string{"category": "is not a known category"}, nil)
	}

	out, err := s.repo.List(ctx, ListQuery{Category: category, IncludeHidden: true})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}
	return out, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	const op = "issues.service.stats"

	out, err := s.repo.Stats(ctx)
	if err != nil {
		return Stats{}, errs.Wrap(op, err)
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if inv, ok := s.repo.(Invalidator); ok {
		inv.Invalidate(ctx)
	}
}

func enqueueEvent(ctx context.Context, outbox OutboxRepository, eventType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap("issues.service.marshal_event", err)
	}
	return outbox.Enqueue(ctx, eventType, string(b))
}
