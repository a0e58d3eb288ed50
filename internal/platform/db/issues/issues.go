// Package issuesdb is the postgres repository for civic issues and
// their status history, comments and moderation flags.
package issuesdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	appissues "github.com/civictrack/civictrack-service/internal/app/issues"
	"github.com/civictrack/civictrack-service/internal/domain/geo"
	"github.com/civictrack/civictrack-service/internal/domain/issues"
	dberrs "github.com/civictrack/civictrack-service/internal/platform/db/errs"
)

type Repository struct {
	exec sqlx.ExtContext
}

func New(exec sqlx.ExtContext) *Repository { return &Repository{exec: exec} }

type dbIssue struct {
	ID           uuid.UUID       `db:"id"`
	Title        string          `db:"title"`
	Description  string          `db:"description"`
	Category     string          `db:"category"`
	Status       string          `db:"status"`
	Latitude     sql.NullFloat64 `db:"latitude"`
	Longitude    sql.NullFloat64 `db:"longitude"`
	Address      sql.NullString  `db:"address"`
	Photos       []byte          `db:"photos"`
	ReporterName string          `db:"reporter_name"`
	ReporterID   uuid.NullUUID   `db:"reporter_id"`
	IsAnonymous  bool            `db:"is_anonymous"`
	FlagCount    int             `db:"flag_count"`
	IsHidden     bool            `db:"is_hidden"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (d dbIssue) toDomain() issues.Issue {
	out := issues.Issue{
		ID:           d.ID,
		Title:        d.Title,
		Description:  d.Description,
		Category:     issues.Category(d.Category),
		Status:       issues.Status(d.Status),
		ReporterName: d.ReporterName,
		IsAnonymous:  d.IsAnonymous,
		FlagCount:    d.FlagCount,
		IsHidden:     d.IsHidden,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	// Latitude and longitude are normalized into one optional coordinate
	// here, at the store boundary; the domain never sees half a location.
	if d.Latitude.Valid && d.Longitude.Valid {
		out.Location = &geo.Coordinate{Lat: d.Latitude.Float64, Lon: d.Longitude.Float64}
	}
	if d.Address.Valid {
		out.Address = d.Address.String
	}
	if d.ReporterID.Valid {
		id := d.ReporterID.UUID
		out.ReporterID = &id
	}
	if len(d.Photos) > 0 {
		_ = json.Unmarshal(d.Photos, &out.Photos)
	}
	return out
}

const selectIssueCols = `
    id,
    title,
    description,
    category,
    status,
    latitude,
    longitude,
    address,
    photos,
    reporter_name,
    reporter_id,
    is_anonymous,
    flag_count,
    is_hidden,
    created_at,
    updated_at
`

func (r *Repository) Insert(ctx context.Context, n issues.NewIssue) (issues.Issue, error) {
	const op = "issues.repo.insert"

	const q = `
        INSERT INTO civic_issues
            (title, description, category, status, latitude, longitude, address, photos, reporter_name, reporter_id, is_anonymous)
        VALUES ($1, $2, $3, 'reported', $4, $5, $6, $7, $8, $9, $10)
        RETURNING ` + selectIssueCols + `;
    `

	var lat, lon sql.NullFloat64
	if n.Location != nil {
		lat = sql.NullFloat64{Float64: n.Location.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: n.Location.Lon, Valid: true}
	}

	photos := n.Photos
	if photos == nil {
		photos = []string{}
	}
	photosJSON, err := json.Marshal(photos)
	if err != nil {
		return issues.Issue{}, dberrs.Map(err, op)
	}

	reporterName := n.ReporterName
	if reporterName == "" {
		reporterName = "Anonymous"
	}

	var row dbIssue
	if err := sqlx.GetContext(ctx, r.exec, &row, q,
		n.Title,
		n.Description,
		string(n.Category),
		lat,
		lon,
		nullString(n.Address),
		photosJSON,
		reporterName,
		nullUUID(n.ReporterID),
		n.IsAnonymous,
	); err != nil {
		return issues.Issue{}, dberrs.Map(err, op)
	}

	return row.toDomain(), nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (issues.Issue, error) {
	const op = "issues.repo.get_by_id"

	const q = `
        SELECT ` + selectIssueCols + `
        FROM civic_issues
        WHERE id = $1;
    `

	var row dbIssue
	if err := sqlx.GetContext(ctx, r.exec, &row, q, id); err != nil {
		return issues.Issue{}, dberrs.Map(err, op)
	}

	return row.toDomain(), nil
}

func (r *Repository) List(ctx context.Context, f appissues.ListQuery) ([]issues.Issue, error) {
	const op = "issues.repo.list"

	var (
		sb    strings.Builder
		args  []any
		conds []string
	)

	sb.WriteString(`SELECT `)
	sb.WriteString(selectIssueCols)
	sb.WriteString(` FROM civic_issues`)

	if !f.IncludeHidden {
		conds = append(conds, `is_hidden = FALSE`)
	}
	if f.Category != "" {
		args = append(args, string(f.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	if len(conds) > 0 {
		sb.WriteString(` WHERE `)
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(` ORDER BY created_at DESC, id DESC`)

	var rows []dbIssue
	if err := sqlx.SelectContext(ctx, r.exec, &rows, sb.String(), args...); err != nil {
		return nil, dberrs.Map(err, op)
	}

	return toDomainList(rows), nil
}

func (r *Repository) ListByReporter(ctx context.Context, reporterID uuid.UUID) ([]issues.Issue, error) {
	const op = "issues.repo.list_by_reporter"

	const q = `
        SELECT ` + selectIssueCols + `
        FROM civic_issues
        WHERE reporter_id = $1
        ORDER BY created_at DESC, id DESC;
    `

	var rows []dbIssue
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, reporterID); err != nil {
		return nil, dberrs.Map(err, op)
	}

	return toDomainList(rows), nil
}

func (r *Repository) ListFlagged(ctx context.Context) ([]issues.Issue, error) {
	const op = "issues.repo.list_flagged"

	const q = `
        SELECT ` + selectIssueCols + `
        FROM civic_issues
        WHERE flag_count > 0
        ORDER BY flag_count DESC, created_at DESC;
    `

	var rows []dbIssue
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q); err != nil {
		return nil, dberrs.Map(err, op)
	}

	return toDomainList(rows), nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status issues.Status) (issues.Issue, error) {
	const op = "issues.repo.update_status"

	const q = `
        UPDATE civic_issues
        SET status = $2, updated_at = NOW()
        WHERE id = $1
        RETURNING ` + selectIssueCols + `;
    `

	var row dbIssue
	if err := sqlx.GetContext(ctx, r.exec, &row, q, id, string(status)); err != nil {
		return issues.Issue{}, dberrs.Map(err, op)
	}

	return row.toDomain(), nil
}

func (r *Repository) AppendStatus(ctx context.Context, issueID uuid.UUID, status issues.Status, note string, changedBy *uuid.UUID) error {
	const op = "issues.repo.append_status"

	const q = `
        INSERT INTO issue_status_history (issue_id, status, note, changed_by)
        VALUES ($1, $2, $3, $4);
    `

	if _, err := r.exec.ExecContext(ctx, q, issueID, string(status), note, nullUUID(changedBy)); err != nil {
		return dberrs.Map(err, op)
	}
	return nil
}

func (r *Repository) History(ctx context.Context, issueID uuid.UUID) ([]issues.StatusChange, error) {
	const op = "issues.repo.history"

	const q = `
        SELECT id, issue_id, status, note, changed_by, created_at
        FROM issue_status_history
        WHERE issue_id = $1
        ORDER BY created_at ASC, id ASC;
    `

	var rows []struct {
		ID        uuid.UUID     `db:"id"`
		IssueID   uuid.UUID     `db:"issue_id"`
		Status    string        `db:"status"`
		Note      string        `db:"note"`
		ChangedBy uuid.NullUUID `db:"changed_by"`
		CreatedAt time.Time     `db:"created_at"`
	}
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, issueID); err != nil {
		return nil, dberrs.Map(err, op)
	}

	out := make([]issues.StatusChange, 0, len(rows))
	for _, row := range rows {
		sc := issues.StatusChange{
			ID:        row.ID,
			IssueID:   row.IssueID,
			Status:    issues.Status(row.Status),
			Note:      row.Note,
			CreatedAt: row.CreatedAt,
		}
		if row.ChangedBy.Valid {
			id := row.ChangedBy.UUID
			sc.ChangedBy = &id
		}
		out = append(out, sc)
	}
	return out, nil
}

func (r *Repository) InsertFlag(ctx context.Context, issueID uuid.UUID, f issues.NewFlag) (issues.Issue, error) {
	const op = "issues.repo.insert_flag"

	const qFlag = `
        INSERT INTO issue_flags (issue_id, reason, reported_by)
        VALUES ($1, $2, $3);
    `
	if _, err := r.exec.ExecContext(ctx, qFlag, issueID, string(f.Reason), nullUUID(f.ReportedBy)); err != nil {
		return issues.Issue{}, dberrs.Map(err, op)
	}

	const qBump = `
        UPDATE civic_issues
        SET flag_count = flag_count + 1, updated_at = NOW()
        WHERE id = $1
        RETURNING ` + selectIssueCols + `;
    `

	var row dbIssue
	if err := sqlx.GetContext(ctx, r.exec, &row, qBump, issueID); err != nil {
		return issues.Issue{}, dberrs.Map(err, op)
	}

	return row.toDomain(), nil
}

func (r *Repository) SetHidden(ctx context.Context, id uuid.UUID, hidden bool) (issues.Issue, error) {
	const op = "issues.repo.set_hidden"

	const q = `
        UPDATE civic_issues
        SET is_hidden = $2, updated_at = NOW()
        WHERE id = $1
        RETURNING ` + selectIssueCols + `;
    `

	var row dbIssue
	if err := sqlx.GetContext(ctx, r.exec, &row, q, id, hidden); err != nil {
		return issues.Issue{}, dberrs.Map(err, op)
	}

	return row.toDomain(), nil
}

func (r *Repository) InsertComment(ctx context.Context, issueID uuid.UUID, c issues.NewComment) (issues.Comment, error) {
	const op = "issues.repo.insert_comment"

	const q = `
        INSERT INTO issue_comments (issue_id, author_name, author_id, content)
        VALUES ($1, $2, $3, $4)
        RETURNING id, issue_id, author_name, author_id, content, created_at;
    `

	authorName := c.AuthorName
	if authorName == "" {
		authorName = "Anonymous"
	}

	var row struct {
		ID         uuid.UUID     `db:"id"`
		IssueID    uuid.UUID     `db:"issue_id"`
		AuthorName string        `db:"author_name"`
		AuthorID   uuid.NullUUID `db:"author_id"`
		Content    string        `db:"content"`
		CreatedAt  time.Time     `db:"created_at"`
	}
	if err := sqlx.GetContext(ctx, r.exec, &row, q, issueID, authorName, nullUUID(c.AuthorID), c.Content); err != nil {
		return issues.Comment{}, dberrs.Map(err, op)
	}

	out := issues.Comment{
		ID:         row.ID,
		IssueID:    row.IssueID,
		AuthorName: row.AuthorName,
		Content:    row.Content,
		CreatedAt:  row.CreatedAt,
	}
	if row.AuthorID.Valid {
		id := row.AuthorID.UUID
		out.AuthorID = &id
	}
	return out, nil
}

func (r *Repository) ListComments(ctx context.Context, issueID uuid.UUID) ([]issues.Comment, error) {
	const op = "issues.repo.list_comments"

	const q = `
        SELECT id, issue_id, author_name, author_id, content, created_at
        FROM issue_comments
        WHERE issue_id = $1
        ORDER BY created_at ASC, id ASC;
    `

	var rows []struct {
		ID         uuid.UUID     `db:"id"`
		IssueID    uuid.UUID     `db:"issue_id"`
		AuthorName string        `db:"author_name"`
		AuthorID   uuid.NullUUID `db:"author_id"`
		Content    string        `db:"content"`
		CreatedAt  time.Time     `db:"created_at"`
	}
	if err := sqlx.SelectContext(ctx, r.exec, &rows, q, issueID); err != nil {
		return nil, dberrs.Map(err, op)
	}

	out := make([]issues.Comment, 0, len(rows))
	for _, row := range rows {
		c := issues.Comment{
			ID:         row.ID,
			IssueID:    row.IssueID,
			AuthorName: row.AuthorName,
			Content:    row.Content,
			CreatedAt:  row.CreatedAt,
		}
		if row.AuthorID.Valid {
			id := row.AuthorID.UUID
			c.AuthorID = &id
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Repository) Stats(ctx context.Context) (appissues.Stats, error) {
	const op = "issues.repo.stats"

	out := appissues.Stats{ByCategory: map[issues.Category]int{}}

	const qStatus = `
        SELECT status, COUNT(*) AS n
        FROM civic_issues
        GROUP BY status;
    `
	var statusRows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := sqlx.SelectContext(ctx, r.exec, &statusRows, qStatus); err != nil {
		return appissues.Stats{}, dberrs.Map(err, op)
	}
	for _, row := range statusRows {
		out.Total += row.N
		switch issues.Status(row.Status) {
		case issues.StatusReported:
			out.Reported = row.N
		case issues.StatusInProgress:
			out.InProgress = row.N
		case issues.StatusResolved:
			out.Resolved = row.N
		case issues.StatusRejected:
			out.Rejected = row.N
		}
	}

	const qFlagged = `SELECT COUNT(*) FROM civic_issues WHERE flag_count > 0;`
	if err := sqlx.GetContext(ctx, r.exec, &out.Flagged, qFlagged); err != nil {
		return appissues.Stats{}, dberrs.Map(err, op)
	}

	const qCategory = `
        SELECT category, COUNT(*) AS n
        FROM civic_issues
        GROUP BY category;
    `
	var catRows []struct {
		Category string `db:"category"`
		N        int    `db:"n"`
	}
	if err := sqlx.SelectContext(ctx, r.exec, &catRows, qCategory); err != nil {
		return appissues.Stats{}, dberrs.Map(err, op)
	}
	for _, row := range catRows {
		out.ByCategory[issues.Category(row.Category)] = row.N
	}

	return out, nil
}

func toDomainList(rows []dbIssue) []issues.Issue {
	out := make([]issues.Issue, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
