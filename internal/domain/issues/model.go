// Package issues provides the civic issue domain model and the pure
// filtering logic that decides which issues a citizen sees.
package issues

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civictrack/civictrack-service/internal/domain/geo"
	"github.com/civictrack/civictrack-service/internal/errs"
)

type Category string

const (
	CategoryRoads        Category = "roads"
	CategoryLighting     Category = "lighting"
	CategoryWaterSupply  Category = "water_supply"
	CategoryCleanliness  Category = "cleanliness"
	CategoryPublicSafety Category = "public_safety"
	CategoryObstructions Category = "obstructions"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryRoads, CategoryLighting, CategoryWaterSupply,
		CategoryCleanliness, CategoryPublicSafety, CategoryObstructions:
		return true
	}
	return false
}

type Status string

const (
	StatusReported   Status = "reported"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusReported, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

type FlagReason string

const (
	FlagSpam          FlagReason = "spam"
	FlagInappropriate FlagReason = "inappropriate"
	FlagFake          FlagReason = "fake"
)

func (r FlagReason) Valid() bool {
	switch r {
	case FlagSpam, FlagInappropriate, FlagFake:
		return true
	}
	return false
}

// AutoHideThreshold is the flag count at which an issue is hidden from
// public listings without moderator action.
const AutoHideThreshold = 3

type Issue struct {
	ID          uuid.UUID
	Title       string
	Description string
	Category    Category
	Status      Status

	Location *geo.Coordinate
	Address  string

	Photos []string

	ReporterName string
	ReporterID   *uuid.UUID
	IsAnonymous  bool

	FlagCount int
	IsHidden  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

type StatusChange struct {
	ID        uuid.UUID
	IssueID   uuid.UUID
	Status    Status
	Note      string
	ChangedBy *uuid.UUID
	CreatedAt time.Time
}

type Comment struct {
	ID         uuid.UUID
	IssueID    uuid.UUID
	AuthorName string
	AuthorID   *uuid.UUID
	Content    string
	CreatedAt  time.Time
}

// NewIssue is the citizen submission; the store assigns ID, timestamps
// and the initial reported status.
type NewIssue struct {
	Title       string
	Description string
	Category    Category

	Location *geo.Coordinate
	Address  string

	Photos []string

	ReporterName string
	ReporterID   *uuid.UUID
	IsAnonymous  bool
}

func (n NewIssue) Validate() error {
	const op = "issues.model.validate_new"

	fields := map[string]string{}

	if strings.TrimSpace(n.Title) == "" {
		fields["title"] = "is required"
	}
	if strings.TrimSpace(n.Description) == "" {
		fields["description"] = "is required"
	}
	if !n.Category.Valid() {
		fields["category"] = "is not a known category"
	}
	if n.Location != nil {
		if err := n.Location.Validate(op); err != nil {
			return err
		}
	}

	if len(fields) > 0 {
		return errs.E(errs.KindInvalid, "ISSUE_INVALID", op, "invalid issue", fields, nil)
	}
	return nil
}

type NewComment struct {
	AuthorName string
	AuthorID   *uuid.UUID
	Content    string
}

func (n NewComment) Validate() error {
	const op = "issues.model.validate_comment"

	fields := map[string]string{}

	if strings.TrimSpace(n.Content) == "" {
		fields["content"] = "is required"
	}

	if len(fields) > 0 {
		return errs.E(errs.KindInvalid, "COMMENT_INVALID", op, "invalid comment", fields, nil)
	}
	return nil
}

type StatusUpdate struct {
	Status    Status
	Note      string
	ChangedBy *uuid.UUID
}

func (u StatusUpdate) Validate() error {
	const op = "issues.model.validate_status_update"

	if !u.Status.Valid() {
		return errs.E(errs.KindInvalid, "STATUS_INVALID", op, "invalid status",
			map[string]string{"status": "is not a known status"}, nil)
	}
	return nil
}

type NewFlag struct {
	Reason     FlagReason
	ReportedBy *uuid.UUID
}

func (f NewFlag) Validate() error {
	const op = "issues.model.validate_flag"

	if !f.Reason.Valid() {
		return errs.E(errs.KindInvalid, "FLAG_INVALID", op, "invalid flag",
			map[string]string{"reason": "must be spam, inappropriate or fake"}, nil)
	}
	return nil
}
