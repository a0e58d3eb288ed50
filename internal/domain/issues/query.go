package issues

import (
	"sort"

	"github.com/google/uuid"

	"github.com/civictrack/civictrack-service/internal/domain/geo"
)

const (
	// DefaultRadiusKm is the visibility radius of the public feed.
	DefaultRadiusKm = 5.0

	// DefaultSimilarRadiusKm is the tighter radius used for duplicate
	// detection before a new report is submitted.
	DefaultSimilarRadiusKm = 2.0
)

type SortKey string

const (
	SortNewest   SortKey = "created_at"
	SortStatus   SortKey = "status"
	SortCategory SortKey = "category"
	SortReporter SortKey = "reporter"
)

// FilterCriteria describes one feed query. Zero values mean "no
// constraint": a nil UserLocation disables geofencing, an empty Category
// or Status matches all, a nil ReporterID disables the owner view and a
// non-positive RadiusKm falls back to DefaultRadiusKm.
type FilterCriteria struct {
	UserLocation *geo.Coordinate
	RadiusKm     float64
	Category     Category
	Status       Status
	ReporterID   *uuid.UUID
	SortBy       SortKey
}

// FilterVisible returns the ordered subsequence of issues within
// radiusKm of user. A nil user location means no geofencing is possible
// and the input is returned unchanged; issues without a location are
// never confirmed visible and are dropped.
func FilterVisible(list []Issue, user *geo.Coordinate, radiusKm float64) ([]Issue, error) {
	if user == nil {
		return list, nil
	}

	out := make([]Issue, 0, len(list))
	for _, is := range list {
		ok, err := geo.WithinRadius(user, is.Location, radiusKm)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, is)
		}
	}
	return out, nil
}

// Apply produces the list an issue feed displays: hidden issues are
// dropped unconditionally, the owner view bypasses category and distance
// filtering, and the survivors are sorted. The input is a snapshot and
// is never mutated; callers re-run Apply whenever filter state changes.
func Apply(list []Issue, c FilterCriteria) ([]Issue, error) {
	out := make([]Issue, 0, len(list))
	for _, is := range list {
		if is.IsHidden {
			continue
		}
		if c.ReporterID != nil {
			if is.ReporterID == nil || *is.ReporterID != *c.ReporterID {
				continue
			}
		} else if c.Category != "" && is.Category != c.Category {
			continue
		}
		if c.Status != "" && is.Status != c.Status {
			continue
		}
		out = append(out, is)
	}

	if c.ReporterID == nil && c.UserLocation != nil {
		radius := c.RadiusKm
		if radius <= 0 {
			radius = DefaultRadiusKm
		}
		var err error
		out, err = FilterVisible(out, c.UserLocation, radius)
		if err != nil {
			return nil, err
		}
	}

	sortIssues(out, c.SortBy)
	return out, nil
}

// FindSimilar returns non-hidden issues of the same category near loc,
// for duplicate-report detection. Without a location it falls back to
// all category matches rather than an empty set.
func FindSimilar(list []Issue, category Category, loc *geo.Coordinate, excludeID *uuid.UUID, radiusKm float64) ([]Issue, error) {
	if radiusKm <= 0 {
		radiusKm = DefaultSimilarRadiusKm
	}

	out := make([]Issue, 0, len(list))
	for _, is := range list {
		if is.IsHidden || is.Category != category {
			continue
		}
		if excludeID != nil && is.ID == *excludeID {
			continue
		}
		out = append(out, is)
	}

	if loc == nil {
		return out, nil
	}
	return FilterVisible(out, loc, radiusKm)
}

func sortIssues(list []Issue, key SortKey) {
	switch key {
	case SortStatus:
		sort.SliceStable(list, func(i, j int) bool { return list[i].Status < list[j].Status })
	case SortCategory:
		sort.SliceStable(list, func(i, j int) bool { return list[i].Category < list[j].Category })
	case SortReporter:
		sort.SliceStable(list, func(i, j int) bool { return list[i].ReporterName < list[j].ReporterName })
	default:
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	}
}
