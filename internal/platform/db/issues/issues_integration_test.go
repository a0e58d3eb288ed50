//go:build integration

package issuesdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	appissues "github.com/civictrack/civictrack-service/internal/app/issues"
	"github.com/civictrack/civictrack-service/internal/domain/geo"
	"github.com/civictrack/civictrack-service/internal/domain/issues"
	"github.com/civictrack/civictrack-service/internal/errs"
	"github.com/civictrack/civictrack-service/internal/platform/db"
)

var (
	testDB      *sqlx.DB
	terminateFn func(context.Context) error
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	testDB, terminateFn, err = setupDB(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "integration setup failed:", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = testDB.Close()

	if terminateFn != nil {
		tdCtx, tdCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer tdCancel()
		_ = terminateFn(tdCtx)
	}

	os.Exit(code)
}

func setupDB(ctx context.Context) (*sqlx.DB, func(context.Context) error, error) {
	if dsn := os.Getenv("TEST_DB_URL"); dsn != "" {
		dbx, err := db.Open(ctx, db.Config{URL: dsn, PingTimeout: 10 * time.Second})
		if err != nil {
			return nil, nil, err
		}
		if err := applyMigrations(dsn); err != nil {
			_ = dbx.Close()
			return nil, nil, err
		}
		if err := db.StatusCheck(ctx, dbx); err != nil {
			_ = dbx.Close()
			return nil, nil, err
		}

		return dbx, nil, nil
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "civic_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(90 * time.Second),
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start container: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, nil, fmt.Errorf("container host: %w", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, nil, fmt.Errorf("container port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/civic_test?sslmode=disable", host, port.Port())

	dbx, err := db.Open(ctx, db.Config{URL: dsn, PingTimeout: 15 * time.Second})
	if err != nil {
		_ = c.Terminate(context.Background())
		return nil, nil, err
	}

	if err := db.StatusCheck(ctx, dbx); err != nil {
		_ = dbx.Close()
		_ = c.Terminate(context.Background())
		return nil, nil, err
	}

	if err := applyMigrations(dsn); err != nil {
		_ = dbx.Close()
		_ = c.Terminate(context.Background())
		return nil, nil, err
	}

	terminateFn := func(ctx context.Context) error {
		return c.Terminate(ctx)
	}
	return dbx, terminateFn, nil
}

func applyMigrations(dbURL string) error {
	migrationsDir, err := findMigrationsDir()
	if err != nil {
		return err
	}

	srcURL := "file://" + filepath.ToSlash(migrationsDir)

	m, err := migrate.New(srcURL, dbURL)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func findMigrationsDir() (string, error) {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}

	dir := filepath.Dir(thisFile)
	for i := 0; i < 10; i++ {
		candidate := filepath.Join(dir, "..", "..", "..", "..", "migrations")
		candidate = filepath.Clean(candidate)

		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return candidate, nil
		}

		dir = filepath.Dir(dir)
	}
	return "", fmt.Errorf("migrations dir not found")
}

func withTx(t *testing.T) (context.Context, *sqlx.Tx) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	tx, err := testDB.BeginTxx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback() })

	return ctx, tx
}

func newTestIssue(title string, lat, lon float64) issues.NewIssue {
	return issues.NewIssue{
		Title:       title,
		Description: "desc",
		Category:    issues.CategoryRoads,
		Location:    &geo.Coordinate{Lat: lat, Lon: lon},
		Address:     "somewhere",
	}
}

func TestRepository_Insert_And_GetByID(t *testing.T) {
	ctx, tx := withTx(t)
	repo := New(tx)

	created, err := repo.Insert(ctx, newTestIssue("pothole", 28.61, 77.20))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if created.Status != issues.StatusReported {
		t.Fatalf("expected status=reported, got %s", created.Status)
	}
	if created.ReporterName != "Anonymous" {
		t.Fatalf("expected default reporter name, got %q", created.ReporterName)
	}

	got, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != created.ID || got.Title != created.Title || got.Category != created.Category {
		t.Fatalf("mismatch: got=%+v created=%+v", got, created)
	}
	if got.Location == nil || got.Location.Lat != 28.61 || got.Location.Lon != 77.20 {
		t.Fatalf("location round trip failed: %+v", got.Location)
	}
}

func TestRepository_Insert_NoLocation(t *testing.T) {
	ctx, tx := withTx(t)
	repo := New(tx)

	n := newTestIssue("no location", 0, 0)
	n.Location = nil

	created, err := repo.Insert(ctx, n)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if created.Location != nil {
		t.Fatalf("expected nil location, got %+v", created.Location)
	}
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	ctx, tx := withTx(t)
	repo := New(tx)

	_, err := repo.GetByID(ctx, uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	if err == nil {
		t.Fatalf("expected error")
	}

	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindNotFound {
		t.Fatalf("expected kind=%s, got %T: %v", errs.KindNotFound, err, err)
	}
}

func TestRepository_Insert_BadCategory_MappedToInvalid(t *testing.T) {
	ctx, tx := withTx(t)
	repo := New(tx)

	n := newTestIssue("bad", 1, 1)
	n.Category = "potholes-and-more"

	_, err := repo.Insert(ctx, n)
	if err == nil {
		t.Fatalf("expected error")
	}

	e, ok := errs.As(err)
	if !ok {
		t.Fatalf("expected *errs.Error, got %T: %v", err, err)
	}
	if e.Kind != errs.KindInvalid {
		t.Fatalf("expected kind=%s, got %s (code=%s op=%s)", errs.KindInvalid, e.Kind, e.Code, e.Op)
	}
	if e.Code != "CHECK_VIOLATION" {
		t.Fatalf("expected code=CHECK_VIOLATION, got %s", e.Code)
	}
}

func TestRepository_List_ExcludesHidden(t *testing.T) {
	ctx, tx := withTx(t)
	repo := New(tx)

	a, err := repo.Insert(ctx, newTestIssue("visible", 1, 1))
	if err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	b, err := repo.Insert(ctx, newTestIssue("hidden", 2, 2))
	if err != nil {
		t.Fatalf("Insert b: %v", err)
	}

	if _, err := repo.SetHidden(ctx, b.ID, true); err != nil {
		t.Fatalf("SetHidden: %v", err)
	}

	items, err := repo.List(ctx, appissues.ListQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].ID != a.ID {
		t.Fatalf("expected only the visible issue, got %d items", len(items))
	}

	all, err := repo.List(ctx, appissues.ListQuery{IncludeHidden: true})
	if err != nil {
		t.Fatalf("List include hidden: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 issues with hidden included, got %d", len(all))
	}
}

func TestRepository_InsertFlag_BumpsCount(t *testing.T) {
	ctx, tx := withTx(t)
	repo := New(tx)

	created, err := repo.Insert(ctx, newTestIssue("flagged", 3, 3))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	flagged, err := repo.InsertFlag(ctx, created.ID, issues.NewFlag{Reason: issues.FlagSpam})
	if err != nil {
		t.Fatalf("InsertFlag: %v", err)
	}
	if flagged.FlagCount != 1 {
		t.Fatalf("expected flag_count=1, got %d", flagged.FlagCount)
	}

	flagged, err = repo.InsertFlag(ctx, created.ID, issues.NewFlag{Reason: issues.FlagFake})
	if err != nil {
		t.Fatalf("InsertFlag #2: %v", err)
	}
	if flagged.FlagCount != 2 {
		t.Fatalf("expected flag_count=2, got %d", flagged.FlagCount)
	}
}

func TestRepository_StatusHistory_Ordered(t *testing.T) {
	ctx, tx := withTx(t)
	repo := New(tx)

	created, err := repo.Insert(ctx, newTestIssue("lifecycle", 4, 4))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := repo.AppendStatus(ctx, created.ID, issues.StatusReported, "Issue reported by citizen", nil); err != nil {
		t.Fatalf("AppendStatus #1: %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, created.ID, issues.StatusInProgress); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := repo.AppendStatus(ctx, created.ID, issues.StatusInProgress, "crew assigned", nil); err != nil {
		t.Fatalf("AppendStatus #2: %v", err)
	}

	history, err := repo.History(ctx, created.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if history[0].Status != issues.StatusReported || history[1].Status != issues.StatusInProgress {
		t.Fatalf("history out of order: %+v", history)
	}
}

func TestRepository_Comments_RoundTrip(t *testing.T) {
	ctx, tx := withTx(t)
	repo := New(tx)

	created, err := repo.Insert(ctx, newTestIssue("commented", 5, 5))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	c, err := repo.InsertComment(ctx, created.ID, issues.NewComment{Content: "same here"})
	if err != nil {
		t.Fatalf("InsertComment: %v", err)
	}
	if c.AuthorName != "Anonymous" {
		t.Fatalf("expected default author name, got %q", c.AuthorName)
	}

	list, err := repo.ListComments(ctx, created.ID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(list) != 1 || list[0].Content != "same here" {
		t.Fatalf("unexpected comments: %+v", list)
	}
}

func TestRepository_Stats(t *testing.T) {
	ctx, tx := withTx(t)
	repo := New(tx)

	a, err := repo.Insert(ctx, newTestIssue("one", 6, 6))
	if err != nil {
		t.Fatalf("Insert a: %v", err)
	}
	if _, err := repo.Insert(ctx, newTestIssue("two", 7, 7)); err != nil {
		t.Fatalf("Insert b: %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, a.ID, issues.StatusResolved); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 || stats.Reported != 1 || stats.Resolved != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ByCategory[issues.CategoryRoads] != 2 {
		t.Fatalf("unexpected category breakdown: %+v", stats.ByCategory)
	}
}
