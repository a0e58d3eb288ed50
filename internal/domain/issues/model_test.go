package issues

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictrack/civictrack-service/internal/domain/geo"
	"github.com/civictrack/civictrack-service/internal/errs"
)

func TestNewIssueValidate(t *testing.T) {
	valid := NewIssue{
		Title:       "Pothole on MG Road",
		Description: "Deep pothole near the bus stop",
		Category:    CategoryRoads,
		Location:    &geo.Coordinate{Lat: 28.6, Lon: 77.2},
	}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.Title = "   "
	err := missing.Validate()
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindInvalid, e.Kind)
	assert.Contains(t, e.Fields, "title")

	badCat := valid
	badCat.Category = Category("sidewalks")
	err = badCat.Validate()
	require.Error(t, err)
	e, _ = errs.As(err)
	assert.Contains(t, e.Fields, "category")

	badLoc := valid
	badLoc.Location = &geo.Coordinate{Lat: math.NaN(), Lon: 0}
	assert.Error(t, badLoc.Validate())

	noLoc := valid
	noLoc.Location = nil
	assert.NoError(t, noLoc.Validate(), "manually addressed issues may lack coordinates")
}

func TestStatusUpdateValidate(t *testing.T) {
	assert.NoError(t, StatusUpdate{Status: StatusInProgress}.Validate())
	assert.NoError(t, StatusUpdate{Status: StatusRejected, Note: "duplicate"}.Validate())
	assert.Error(t, StatusUpdate{Status: Status("closed")}.Validate())
	assert.Error(t, StatusUpdate{}.Validate())
}

func TestNewFlagValidate(t *testing.T) {
	assert.NoError(t, NewFlag{Reason: FlagSpam}.Validate())
	assert.Error(t, NewFlag{Reason: FlagReason("boring")}.Validate())
}

func TestNewCommentValidate(t *testing.T) {
	assert.NoError(t, NewComment{AuthorName: "Asha", Content: "Still broken"}.Validate())
	assert.Error(t, NewComment{AuthorName: "Asha", Content: " "}.Validate())
}

func TestEnumValidity(t *testing.T) {
	for _, c := range []Category{CategoryRoads, CategoryLighting, CategoryWaterSupply, CategoryCleanliness, CategoryPublicSafety, CategoryObstructions} {
		assert.True(t, c.Valid())
	}
	assert.False(t, Category("").Valid())

	for _, s := range []Status{StatusReported, StatusInProgress, StatusResolved, StatusRejected} {
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("pending").Valid())
}
