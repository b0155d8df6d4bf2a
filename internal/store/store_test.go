// Copyright (c) 2025 Berik Ashimov

package store

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeplan/internal/design"
)

const sampleDesign = `
name: campus
base: 10.0.0.0
routers: 3
lans:
  - {router: 1, vlan: 10, name: users, prefix: 24}
  - {router: 3, vlan: 20, name: servers, prefix: 25}
links:
  - {a: 1, b: 2}
  - {a: 2, b: 3}
uplinks:
  - {router: 3}
`

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	fixed := time.Date(2025, 5, 4, 10, 30, 0, 0, time.UTC)
	s, err := Open("file:"+name+"?mode=memory&cache=shared", WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

func samplePlan(t *testing.T) *design.Plan {
	t.Helper()
	d, err := design.Parse([]byte(sampleDesign), design.FormatYAML)
	require.NoError(t, err)
	plan, err := design.Build(d)
	require.NoError(t, err)
	return plan
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "plans.db?_pragma=foreign_keys(1)", SQLiteDSN("plans.db"))
	assert.Equal(t, "file:x?mode=memory&_pragma=foreign_keys(1)", SQLiteDSN("file:x?mode=memory"))
	assert.Equal(t, "a.db?_pragma=foreign_keys(0)", SQLiteDSN("a.db?_pragma=foreign_keys(0)"))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	require.NoError(t, s.Migrate())
	again, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, v, again)
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	s := openTestStore(t)
	_, err := s.db.Exec(`INSERT INTO schema_migrations(version, applied_at) VALUES(99, 'x')`)
	require.NoError(t, err)
	assert.True(t, errors.Is(s.Migrate(), ErrSchemaTooNew))
}

func TestSaveAndLoadPlan(t *testing.T) {
	s := openTestStore(t)
	plan := samplePlan(t)

	id, err := s.SavePlan(plan, Source{Body: []byte(sampleDesign), Format: "yaml"})
	require.NoError(t, err)
	assert.Positive(t, id)

	loaded, err := s.LoadPlan(id)
	require.NoError(t, err)
	assert.Equal(t, plan, loaded)

	src, err := s.LoadSource(id)
	require.NoError(t, err)
	assert.Equal(t, "yaml", src.Format)
	assert.Equal(t, sampleDesign, string(src.Body))
}

func TestListPlans(t *testing.T) {
	s := openTestStore(t)
	plan := samplePlan(t)
	first, err := s.SavePlan(plan, Source{})
	require.NoError(t, err)
	second, err := s.SavePlan(plan, Source{})
	require.NoError(t, err)

	list, err := s.ListPlans()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
	assert.Equal(t, "campus", list[0].Name)
	assert.Equal(t, plan.BlockCount(), list[0].Blocks)
	assert.Equal(t, len(plan.Routes), list[0].Routes)
	assert.Equal(t, "2025-05-04T10:30:00Z", list[0].CreatedAt)
}

func TestDeletePlanCascades(t *testing.T) {
	s := openTestStore(t)
	id, err := s.SavePlan(samplePlan(t), Source{})
	require.NoError(t, err)

	require.NoError(t, s.DeletePlan(id))
	_, err = s.LoadPlan(id)
	assert.True(t, errors.Is(err, ErrPlanNotFound))
	assert.True(t, errors.Is(s.DeletePlan(id), ErrPlanNotFound))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(1) FROM plan_routes WHERE plan_id=?`, id).Scan(&n))
	assert.Zero(t, n)
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadPlan(42)
	assert.True(t, errors.Is(err, ErrPlanNotFound))
	_, err = s.LoadSource(42)
	assert.True(t, errors.Is(err, ErrPlanNotFound))
}

func TestMigrationVersion(t *testing.T) {
	v, err := migrationVersion("migrations/0002_route_lookup.sql")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, err = migrationVersion("migrations/init.sql")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsOrdered(t *testing.T) {
	steps, err := embeddedMigrations()
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, migration{version: 1, file: "migrations/0001_init.sql"}, steps[0])
	assert.Equal(t, 2, steps[1].version)
}

func TestMigrateRecordsAppliedAt(t *testing.T) {
	s := openTestStore(t)
	var at string
	require.NoError(t, s.db.QueryRow(`SELECT applied_at FROM schema_migrations WHERE version=1`).Scan(&at))
	assert.Equal(t, "2025-05-04T10:30:00Z", at)
}
