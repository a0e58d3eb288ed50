package issues

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictrack/civictrack-service/internal/domain/geo"
)

func loc(lat, lon float64) *geo.Coordinate {
	return &geo.Coordinate{Lat: lat, Lon: lon}
}

func issueAt(title string, l *geo.Coordinate) Issue {
	return Issue{
		ID:       uuid.New(),
		Title:    title,
		Category: CategoryRoads,
		Status:   StatusReported,
		Location: l,
	}
}

func TestFilterVisibleNilUserReturnsInputUnchanged(t *testing.T) {
	list := []Issue{
		issueAt("a", loc(10, 10)),
		issueAt("b", nil),
		issueAt("c", loc(50, 50)),
	}

	out, err := FilterVisible(list, nil, 5)
	require.NoError(t, err)
	assert.Equal(t, list, out)
}

func TestFilterVisibleDelhiScenario(t *testing.T) {
	user := loc(28.6139, 77.2090)
	a := issueAt("a", loc(28.6139, 77.2090)) // 0 km
	b := issueAt("b", loc(28.6500, 77.2500)) // ~5.8 km
	c := issueAt("c", nil)

	out, err := FilterVisible([]Issue{a, b, c}, user, 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, a.ID, out[0].ID)
}

func TestFilterVisibleDropsMissingLocation(t *testing.T) {
	user := loc(0, 0)
	out, err := FilterVisible([]Issue{issueAt("nowhere", nil)}, user, 10000)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFilterVisibleInclusiveBoundary(t *testing.T) {
	user := loc(0, 0)
	is := issueAt("boundary", loc(0, 1))

	d, err := geo.DistanceKm(*user, *is.Location)
	require.NoError(t, err)

	out, err := FilterVisible([]Issue{is}, user, d)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestFilterVisiblePreservesOrder(t *testing.T) {
	user := loc(0, 0)
	a := issueAt("a", loc(0, 0.03))
	b := issueAt("b", loc(0, 0.01))
	c := issueAt("c", loc(0, 0.02))

	out, err := FilterVisible([]Issue{a, b, c}, user, 5)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{out[0].Title, out[1].Title, out[2].Title})
}

func TestApplyEmptyCriteriaReturnsNonHiddenNewestFirst(t *testing.T) {
	now := time.Now()
	older := issueAt("older", nil)
	older.CreatedAt = now.Add(-time.Hour)
	newer := issueAt("newer", nil)
	newer.CreatedAt = now
	hidden := issueAt("hidden", nil)
	hidden.IsHidden = true
	hidden.CreatedAt = now.Add(time.Hour)

	out, err := Apply([]Issue{older, hidden, newer}, FilterCriteria{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "newer", out[0].Title)
	assert.Equal(t, "older", out[1].Title)
}

func TestApplyNeverReturnsHidden(t *testing.T) {
	owner := uuid.New()
	hidden := issueAt("hidden", nil)
	hidden.IsHidden = true
	hidden.ReporterID = &owner

	criteria := []FilterCriteria{
		{},
		{Category: CategoryRoads},
		{Status: StatusReported},
		{ReporterID: &owner},
		{UserLocation: loc(0, 0), RadiusKm: 20000},
	}

	for _, c := range criteria {
		out, err := Apply([]Issue{hidden}, c)
		require.NoError(t, err)
		assert.Empty(t, out)
	}
}

func TestApplyCategoryFilterSkipsHidden(t *testing.T) {
	visible := issueAt("visible", nil)
	visible.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hidden := issueAt("flag-hidden", nil)
	hidden.IsHidden = true
	hidden.CreatedAt = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	out, err := Apply([]Issue{visible, hidden}, FilterCriteria{Category: CategoryRoads})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, visible.ID, out[0].ID)
}

func TestApplyOwnerViewBypassesDistanceAndCategory(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()

	mine := issueAt("mine", loc(50.0, 10.0)) // ~1000s of km from the user location below
	mine.ReporterID = &owner
	mine.Category = CategoryLighting

	theirs := issueAt("theirs", loc(28.6139, 77.2090))
	theirs.ReporterID = &other

	anon := issueAt("anon", loc(28.6139, 77.2090))

	out, err := Apply([]Issue{mine, theirs, anon}, FilterCriteria{
		ReporterID:   &owner,
		UserLocation: loc(28.6139, 77.2090),
		RadiusKm:     5,
		Category:     CategoryRoads,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, mine.ID, out[0].ID)
}

func TestApplyStatusFilter(t *testing.T) {
	reported := issueAt("reported", nil)
	resolved := issueAt("resolved", nil)
	resolved.Status = StatusResolved

	out, err := Apply([]Issue{reported, resolved}, FilterCriteria{Status: StatusResolved})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, resolved.ID, out[0].ID)
}

func TestApplyUnknownEnumValuesMatchNothing(t *testing.T) {
	is := issueAt("a", nil)

	out, err := Apply([]Issue{is}, FilterCriteria{Category: Category("potholes")})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = Apply([]Issue{is}, FilterCriteria{Status: Status("done")})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestApplyDefaultRadius(t *testing.T) {
	user := loc(28.6139, 77.2090)
	near := issueAt("near", loc(28.6200, 77.2100)) // well under 5 km
	far := issueAt("far", loc(28.6500, 77.2500))   // ~5.8 km

	out, err := Apply([]Issue{near, far}, FilterCriteria{UserLocation: user})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, near.ID, out[0].ID)
}

func TestApplyGeofenceDropsIssuesWithoutLocation(t *testing.T) {
	out, err := Apply([]Issue{issueAt("nowhere", nil)}, FilterCriteria{UserLocation: loc(0, 0), RadiusKm: 3})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestApplySortKeys(t *testing.T) {
	a := issueAt("a", nil)
	a.Status = StatusResolved
	a.Category = CategoryWaterSupply
	a.ReporterName = "zara"

	b := issueAt("b", nil)
	b.Status = StatusInProgress
	b.Category = CategoryLighting
	b.ReporterName = "amir"

	list := []Issue{a, b}

	out, err := Apply(list, FilterCriteria{SortBy: SortStatus})
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, out[0].Status)

	out, err = Apply(list, FilterCriteria{SortBy: SortCategory})
	require.NoError(t, err)
	assert.Equal(t, CategoryLighting, out[0].Category)

	out, err = Apply(list, FilterCriteria{SortBy: SortReporter})
	require.NoError(t, err)
	assert.Equal(t, "amir", out[0].ReporterName)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	now := time.Now()
	a := issueAt("a", nil)
	a.CreatedAt = now.Add(-time.Hour)
	b := issueAt("b", nil)
	b.CreatedAt = now

	in := []Issue{a, b}
	_, err := Apply(in, FilterCriteria{})
	require.NoError(t, err)

	assert.Equal(t, "a", in[0].Title)
	assert.Equal(t, "b", in[1].Title)
}

func TestFindSimilarNoLocationReturnsAllCategoryMatches(t *testing.T) {
	excluded := issueAt("excluded", nil)
	match := issueAt("match", nil)
	otherCat := issueAt("other", nil)
	otherCat.Category = CategoryLighting
	hidden := issueAt("hidden", nil)
	hidden.IsHidden = true

	out, err := FindSimilar([]Issue{excluded, match, otherCat, hidden}, CategoryRoads, nil, &excluded.ID, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, match.ID, out[0].ID)
}

func TestFindSimilarExcludesIDEvenAtZeroDistance(t *testing.T) {
	at := loc(10, 10)
	self := issueAt("self", loc(10, 10))
	self.Category = CategoryLighting

	out, err := FindSimilar([]Issue{self}, CategoryLighting, at, &self.ID, 2)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFindSimilarRadiusExcludesFarMatches(t *testing.T) {
	at := loc(28.6139, 77.2090)
	near := issueAt("near", loc(28.6150, 77.2100))
	far := issueAt("far", loc(28.6500, 77.2500)) // ~5.8 km, outside 2 km

	out, err := FindSimilar([]Issue{near, far}, CategoryRoads, at, nil, 2)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, near.ID, out[0].ID)
}

func TestFindSimilarDefaultRadius(t *testing.T) {
	at := loc(0, 0)
	near := issueAt("near", loc(0, 0.01))  // ~1.1 km
	far := issueAt("far", loc(0, 0.03))    // ~3.3 km
	nowhere := issueAt("nowhere", nil)

	out, err := FindSimilar([]Issue{near, far, nowhere}, CategoryRoads, at, nil, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, near.ID, out[0].ID)
}
