package issues

import (
	"time"

	"github.com/google/uuid"

	"github.com/civictrack/civictrack-service/internal/domain/geo"
)

const (
	EventIssueReported = "issue_reported"
	EventStatusChanged = "status_changed"
)

type IssueReported struct {
	IssueID    uuid.UUID
	Title      string
	Category   Category
	Location   *geo.Coordinate
	OccurredAt time.Time
}

type StatusChanged struct {
	IssueID    uuid.UUID
	Title      string
	Status     Status
	Note       string
	OccurredAt time.Time
}
