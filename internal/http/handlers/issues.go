// Package handlers contains the Gin HTTP handlers. Handlers parse
// requests, call the application services and attach errors to the
// context; the error middleware owns the failure envelope.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appissues "github.com/civictrack/civictrack-service/internal/app/issues"
	"github.com/civictrack/civictrack-service/internal/domain/geo"
	"github.com/civictrack/civictrack-service/internal/domain/issues"
	"github.com/civictrack/civictrack-service/internal/errs"
)

type Issues struct {
	svc *appissues.Service
}

func NewIssues(svc *appissues.Service) *Issues {
	return &Issues{svc: svc}
}

type pointDTO struct {
	Lat float64 `json:"lat" binding:"required"`
	Lon float64 `json:"lon" binding:"required"`
}

type issueResponse struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Status       string     `json:"status"`
	Location     *pointDTO  `json:"location,omitempty"`
	Address      string     `json:"address,omitempty"`
	Photos       []string   `json:"photos,omitempty"`
	ReporterName string     `json:"reporter_name"`
	ReporterID   *uuid.UUID `json:"reporter_id,omitempty"`
	IsAnonymous  bool       `json:"is_anonymous"`
	FlagCount    int        `json:"flag_count"`
	IsHidden     bool       `json:"is_hidden"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toIssueResponse(is issues.Issue) issueResponse {
	var loc *pointDTO
	if is.Location != nil {
		loc = &pointDTO{Lat: is.Location.Lat, Lon: is.Location.Lon}
	}
	return issueResponse{
		ID:           is.ID,
		Title:        is.Title,
		Description:  is.Description,
		Category:     string(is.Category),
		Status:       string(is.Status),
		Location:     loc,
		Address:      is.Address,
		Photos:       is.Photos,
		ReporterName: is.ReporterName,
		ReporterID:   is.ReporterID,
		IsAnonymous:  is.IsAnonymous,
		FlagCount:    is.FlagCount,
		IsHidden:     is.IsHidden,
		CreatedAt:    is.CreatedAt,
		UpdatedAt:    is.UpdatedAt,
	}
}

func toIssueList(items []issues.Issue) []issueResponse {
	out := make([]issueResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toIssueResponse(it))
	}
	return out
}

type statusChangeResponse struct {
	ID        uuid.UUID  `json:"id"`
	Status    string     `json:"status"`
	Note      string     `json:"note,omitempty"`
	ChangedBy *uuid.UUID `json:"changed_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type commentResponse struct {
	ID         uuid.UUID  `json:"id"`
	IssueID    uuid.UUID  `json:"issue_id"`
	AuthorName string     `json:"author_name"`
	AuthorID   *uuid.UUID `json:"author_id,omitempty"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toCommentResponse(c issues.Comment) commentResponse {
	return commentResponse{
		ID:         c.ID,
		IssueID:    c.IssueID,
		AuthorName: c.AuthorName,
		AuthorID:   c.AuthorID,
		Content:    c.Content,
		CreatedAt:  c.CreatedAt,
	}
}

type issueDetailResponse struct {
	issueResponse
	History  []statusChangeResponse `json:"history"`
	Comments []commentResponse      `json:"comments"`
}

type createIssueRequest struct {
	Title        string    `json:"title" binding:"required"`
	Description  string    `json:"description" binding:"required"`
	Category     string    `json:"category" binding:"required"`
	Location     *pointDTO `json:"location"`
	Address      string    `json:"address"`
	Photos       []string  `json:"photos"`
	ReporterName string    `json:"reporter_name"`
	ReporterID   *string   `json:"reporter_id"`
	IsAnonymous  bool      `json:"is_anonymous"`
}

func (h *Issues) Create(ctx *gin.Context) {
	const op = "issues.http.create"

	var req createIssueRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(errs.E(errs.KindInvalid, "INVALID_JSON", op, "invalid json", nil, err))
		return
	}

	reporterID, err := parseOptionalUUID(req.ReporterID)
	if err != nil {
		ctx.Error(errs.E(errs.KindInvalid, "INVALID_ID", op, "invalid reporter id",
			map[string]string{"reporter_id": "must be a uuid"}, err))
		return
	}

	var loc *geo.Coordinate
	if req.Location != nil {
		loc = &geo.Coordinate{Lat: req.Location.Lat, Lon: req.Location.Lon}
	}

	created, err := h.svc.Create(ctx.Request.Context(), issues.NewIssue{
		Title:        req.Title,
		Description:  req.Description,
		Category:     issues.Category(req.Category),
		Location:     loc,
		Address:      req.Address,
		Photos:       req.Photos,
		ReporterName: req.ReporterName,
		ReporterID:   reporterID,
		IsAnonymous:  req.IsAnonymous,
	})
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusCreated, toIssueResponse(created))
}

// List serves the public feed. lat and lon must come together; without
// them the feed degrades to an ungeofenced list.
func (h *Issues) List(ctx *gin.Context) {
	const op = "issues.http.list"

	user, err := parseLocation(ctx, op)
	if err != nil {
		ctx.Error(err)
		return
	}

	radius, err := parseRadius(ctx, op)
	if err != nil {
		ctx.Error(err)
		return
	}

	items, err := h.svc.List(ctx.Request.Context(), issues.FilterCriteria{
		UserLocation: user,
		RadiusKm:     radius,
		Category:     issues.Category(ctx.Query("category")),
		Status:       issues.Status(ctx.Query("status")),
		SortBy:       issues.SortKey(ctx.Query("sort")),
	})
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, toIssueList(items))
}

func (h *Issues) GetByID(ctx *gin.Context) {
	const op = "issues.http.get_by_id"

	id, err := parseUUIDParam(ctx, "id", op)
	if err != nil {
		ctx.Error(err)
		return
	}

	detail, err := h.svc.GetByID(ctx.Request.Context(), id)
	if err != nil {
		ctx.Error(err)
		return
	}

	resp := issueDetailResponse{
		issueResponse: toIssueResponse(detail.Issue),
		History:       make([]statusChangeResponse, 0, len(detail.History)),
		Comments:      make([]commentResponse, 0, len(detail.Comments)),
	}
	for _, hc := range detail.History {
		resp.History = append(resp.History, statusChangeResponse{
			ID:        hc.ID,
			Status:    string(hc.Status),
			Note:      hc.Note,
			ChangedBy: hc.ChangedBy,
			CreatedAt: hc.CreatedAt,
		})
	}
	for _, cm := range detail.Comments {
		resp.Comments = append(resp.Comments, toCommentResponse(cm))
	}

	ctx.JSON(http.StatusOK, resp)
}

// Similar is the duplicate check run before submitting a report.
func (h *Issues) Similar(ctx *gin.Context) {
	const op = "issues.http.similar"

	loc, err := parseLocation(ctx, op)
	if err != nil {
		ctx.Error(err)
		return
	}

	radius, err := parseRadius(ctx, op)
	if err != nil {
		ctx.Error(err)
		return
	}

	var excludeID *uuid.UUID
	if raw := ctx.Query("exclude_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			ctx.Error(errs.E(errs.KindInvalid, "INVALID_ID", op, "invalid exclude id",
				map[string]string{"exclude_id": "must be a uuid"}, err))
			return
		}
		excludeID = &id
	}

	items, err := h.svc.Similar(ctx.Request.Context(), issues.Category(ctx.Query("category")), loc, excludeID, radius)
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, toIssueList(items))
}

// ListByReporter is the owner view: the reporter's own issues with no
// geofencing and no category filter. Hidden issues stay hidden here too.
func (h *Issues) ListByReporter(ctx *gin.Context) {
	const op = "issues.http.list_by_reporter"

	id, err := parseUUIDParam(ctx, "id", op)
	if err != nil {
		ctx.Error(err)
		return
	}

	items, err := h.svc.List(ctx.Request.Context(), issues.FilterCriteria{
		ReporterID: &id,
		Status:     issues.Status(ctx.Query("status")),
		SortBy:     issues.SortKey(ctx.Query("sort")),
	})
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, toIssueList(items))
}

type addCommentRequest struct {
	AuthorName string  `json:"author_name"`
	AuthorID   *string `json:"author_id"`
	Content    string  `json:"content" binding:"required"`
}

func (h *Issues) AddComment(ctx *gin.Context) {
	const op = "issues.http.add_comment"

	issueID, err := parseUUIDParam(ctx, "id", op)
	if err != nil {
		ctx.Error(err)
		return
	}

	var req addCommentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(errs.E(errs.KindInvalid, "INVALID_JSON", op, "invalid json", nil, err))
		return
	}

	authorID, err := parseOptionalUUID(req.AuthorID)
	if err != nil {
		ctx.Error(errs.E(errs.KindInvalid, "INVALID_ID", op, "invalid author id",
			map[string]string{"author_id": "must be a uuid"}, err))
		return
	}

	comment, err := h.svc.AddComment(ctx.Request.Context(), issueID, issues.NewComment{
		AuthorName: req.AuthorName,
		AuthorID:   authorID,
		Content:    req.Content,
	})
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusCreated, toCommentResponse(comment))
}

type flagIssueRequest struct {
	Reason     string  `json:"reason" binding:"required"`
	ReportedBy *string `json:"reported_by"`
}

func (h *Issues) Flag(ctx *gin.Context) {
	const op = "issues.http.flag"

	issueID, err := parseUUIDParam(ctx, "id", op)
	if err != nil {
		ctx.Error(err)
		return
	}

	var req flagIssueRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(errs.E(errs.KindInvalid, "INVALID_JSON", op, "invalid json", nil, err))
		return
	}

	reportedBy, err := parseOptionalUUID(req.ReportedBy)
	if err != nil {
		ctx.Error(errs.E(errs.KindInvalid, "INVALID_ID", op, "invalid reporter id",
			map[string]string{"reported_by": "must be a uuid"}, err))
		return
	}

	flagged, err := h.svc.Flag(ctx.Request.Context(), issueID, issues.NewFlag{
		Reason:     issues.FlagReason(req.Reason),
		ReportedBy: reportedBy,
	})
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, toIssueResponse(flagged))
}

type updateStatusRequest struct {
	Status    string  `json:"status" binding:"required"`
	Note      string  `json:"note"`
	ChangedBy *string `json:"changed_by"`
}

func (h *Issues) UpdateStatus(ctx *gin.Context) {
	const op = "issues.http.update_status"

	issueID, err := parseUUIDParam(ctx, "id", op)
	if err != nil {
		ctx.Error(err)
		return
	}

	var req updateStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(errs.E(errs.KindInvalid, "INVALID_JSON", op, "invalid json", nil, err))
		return
	}

	changedBy, err := parseOptionalUUID(req.ChangedBy)
	if err != nil {
		ctx.Error(errs.E(errs.KindInvalid, "INVALID_ID", op, "invalid changer id",
			map[string]string{"changed_by": "must be a uuid"}, err))
		return
	}

	updated, err := h.svc.UpdateStatus(ctx.Request.Context(), issueID, issues.StatusUpdate{
		Status:    issues.Status(req.Status),
		Note:      req.Note,
		ChangedBy: changedBy,
	})
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, toIssueResponse(updated))
}

type setVisibilityRequest struct {
	Hidden *bool `json:"hidden" binding:"required"`
}

func (h *Issues) SetVisibility(ctx *gin.Context) {
	const op = "issues.http.set_visibility"

	issueID, err := parseUUIDParam(ctx, "id", op)
	if err != nil {
		ctx.Error(err)
		return
	}

	var req setVisibilityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(errs.E(errs.KindInvalid, "INVALID_JSON", op, "invalid json", nil, err))
		return
	}

	updated, err := h.svc.SetHidden(ctx.Request.Context(), issueID, *req.Hidden)
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, toIssueResponse(updated))
}

func (h *Issues) ListFlagged(ctx *gin.Context) {
	items, err := h.svc.ListFlagged(ctx.Request.Context())
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, toIssueList(items))
}

func (h *Issues) ListByCategory(ctx *gin.Context) {
	items, err := h.svc.ListByCategory(ctx.Request.Context(), issues.Category(ctx.Param("category")))
	if err != nil {
		ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, toIssueList(items))
}

type statsResponse struct {
	Total      int            `json:"total"`
	Reported   int            `json:"reported"`
	InProgress int            `json:"in_progress"`
	Resolved   int            `json:"resolved"`
	Rejected   int            `json:"rejected"`
	Flagged    int            `json:"flagged"`
	ByCategory map[string]int `json:"by_category"`
}

func (h *Issues) Stats(ctx *gin.Context) {
	stats, err := h.svc.Stats(ctx.Request.Context())
	if err != nil {
		ctx.Error(err)
		return
	}

	byCategory := make(map[string]int, len(stats.ByCategory))
	for cat, n := range stats.ByCategory {
		byCategory[string(cat)] = n
	}

	ctx.JSON(http.StatusOK, statsResponse{
		Total:      stats.Total,
		Reported:   stats.Reported,
		InProgress: stats.InProgress,
		Resolved:   stats.Resolved,
		Rejected:   stats.Rejected,
		Flagged:    stats.Flagged,
		ByCategory: byCategory,
	})
}

func parseUUIDParam(ctx *gin.Context, name, op string) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Param(name))
	if err != nil {
		return uuid.Nil, errs.E(errs.KindInvalid, "INVALID_ID", op, "invalid id",
			map[string]string{name: "must be a uuid"}, err)
	}
	return id, nil
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseLocation reads lat/lon query params. Both or neither: a lone one
// is a client bug, not a degraded feed.
func parseLocation(ctx *gin.Context, op string) (*geo.Coordinate, error) {
	rawLat, rawLon := ctx.Query("lat"), ctx.Query("lon")
	if rawLat == "" && rawLon == "" {
		return nil, nil
	}
	if rawLat == "" || rawLon == "" {
		return nil, errs.E(errs.KindInvalid, "INVALID_COORDINATE", op, "lat and lon must be provided together",
			map[string]string{"lat": "required with lon", "lon": "required with lat"}, nil)
	}

	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return nil, errs.E(errs.KindInvalid, "INVALID_COORDINATE", op, "invalid latitude",
			map[string]string{"lat": "must be a number"}, err)
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil {
		return nil, errs.E(errs.KindInvalid, "INVALID_COORDINATE", op, "invalid longitude",
			map[string]string{"lon": "must be a number"}, err)
	}

	loc := &geo.Coordinate{Lat: lat, Lon: lon}
	if err := loc.Validate(op); err != nil {
		return nil, err
	}
	return loc, nil
}

func parseRadius(ctx *gin.Context, op string) (float64, error) {
	raw := ctx.Query("radius_km")
	if raw == "" {
		return 0, nil
	}
	radius, err := strconv.ParseFloat(raw, 64)
	if err != nil || radius <= 0 {
		return 0, errs.E(errs.KindInvalid, "INVALID_RADIUS", op, "invalid radius",
			map[string]string{"radius_km": "must be a positive number"}, err)
	}
	return radius, nil
}
