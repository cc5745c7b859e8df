package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/srms-dev/srms-api/internal/grading"
	"github.com/srms-dev/srms-api/internal/models"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
)

type mockConfigRepo struct {
	entries map[string]*models.ConfigEntry
}

func newMockConfigRepo() *mockConfigRepo {
	return &mockConfigRepo{entries: make(map[string]*models.ConfigEntry)}
}

func (m *mockConfigRepo) FindByKey(ctx context.Context, key string) (*models.ConfigEntry, error) {
	e, ok := m.entries[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (m *mockConfigRepo) Upsert(ctx context.Context, entry *models.ConfigEntry) error {
	stored := *entry
	m.entries[entry.Key] = &stored
	return nil
}

func (m *mockConfigRepo) SeedIfMissing(ctx context.Context, entry *models.ConfigEntry) error {
	if _, ok := m.entries[entry.Key]; ok {
		return nil
	}
	stored := *entry
	m.entries[entry.Key] = &stored
	return nil
}

func (m *mockConfigRepo) List(ctx context.Context, category string) ([]models.ConfigEntry, error) {
	out := make([]models.ConfigEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *mockConfigRepo) Delete(ctx context.Context, key string) error {
	if _, ok := m.entries[key]; !ok {
		return sql.ErrNoRows
	}
	delete(m.entries, key)
	return nil
}

func newConfigFixture() (*ConfigService, *mockConfigRepo) {
	repo := newMockConfigRepo()
	return NewConfigService(repo, validator.New(), zap.NewNop()), repo
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	svc, repo := newConfigFixture()

	require.NoError(t, svc.SeedDefaults(context.Background()))
	assert.Len(t, repo.entries, 4)

	// A later edit must survive a reseed.
	custom := json.RawMessage(`[{"min_percent":50,"grade":"P","point":5},{"min_percent":0,"grade":"F","point":0}]`)
	repo.entries[models.ConfigKeyGradeMapping].Value = custom

	require.NoError(t, svc.SeedDefaults(context.Background()))
	assert.Equal(t, custom, repo.entries[models.ConfigKeyGradeMapping].Value)
}

func TestGradeScaleFallsBackToDefault(t *testing.T) {
	svc, repo := newConfigFixture()

	// No row at all.
	scale := svc.GradeScale(context.Background())
	assert.Equal(t, grading.DefaultScale(), scale)

	// Malformed row.
	repo.entries[models.ConfigKeyGradeMapping] = &models.ConfigEntry{
		Key:   models.ConfigKeyGradeMapping,
		Value: json.RawMessage(`{"not":"a band table"}`),
	}
	scale = svc.GradeScale(context.Background())
	assert.Equal(t, grading.DefaultScale(), scale)
}

func TestGradeScaleUsesStoredBands(t *testing.T) {
	svc, repo := newConfigFixture()

	// Stored out of order; GradeScale returns it sorted highest first.
	repo.entries[models.ConfigKeyGradeMapping] = &models.ConfigEntry{
		Key:   models.ConfigKeyGradeMapping,
		Value: json.RawMessage(`[{"min_percent":0,"grade":"F","point":0},{"min_percent":50,"grade":"P","point":5}]`),
	}

	scale := svc.GradeScale(context.Background())
	require.Len(t, scale, 2)
	assert.Equal(t, "P", scale[0].Grade)
	assert.Equal(t, 50.0, scale[0].MinPercent)
	assert.Equal(t, "F", scale[1].Grade)
}

func TestUpsertRejectsInvalidGradeMapping(t *testing.T) {
	svc, _ := newConfigFixture()

	_, err := svc.Upsert(context.Background(), "admin-1", models.UpsertConfigRequest{
		Key:      models.ConfigKeyGradeMapping,
		Value:    json.RawMessage(`[{"min_percent":120,"grade":"A+","point":10}]`),
		Category: "grading",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Upsert(context.Background(), "admin-1", models.UpsertConfigRequest{
		Key:      models.ConfigKeyGradeMapping,
		Value:    json.RawMessage(`"not an array"`),
		Category: "grading",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUpsertStoresEntryWithActor(t *testing.T) {
	svc, repo := newConfigFixture()

	entry, err := svc.Upsert(context.Background(), "admin-1", models.UpsertConfigRequest{
		Key:      models.ConfigKeyPassingPercentage,
		Value:    json.RawMessage(`35`),
		Category: "academic",
	})
	require.NoError(t, err)
	require.NotNil(t, entry.UpdatedBy)
	assert.Equal(t, "admin-1", *entry.UpdatedBy)
	assert.True(t, entry.Active)

	stored, ok := repo.entries[models.ConfigKeyPassingPercentage]
	require.True(t, ok)
	assert.Equal(t, json.RawMessage(`35`), stored.Value)
}

func TestUpsertRejectsUnknownCategory(t *testing.T) {
	svc, _ := newConfigFixture()

	_, err := svc.Upsert(context.Background(), "admin-1", models.UpsertConfigRequest{
		Key:      "SOME_KEY",
		Value:    json.RawMessage(`1`),
		Category: "bogus",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExamTypesFallsBackToBuiltins(t *testing.T) {
	svc, repo := newConfigFixture()

	types := svc.ExamTypes(context.Background())
	assert.Equal(t, []models.ExamType{models.ExamMid, models.ExamFinal, models.ExamPractical, models.ExamAssignment}, types)

	repo.entries[models.ConfigKeyExamTypes] = &models.ConfigEntry{
		Key:   models.ConfigKeyExamTypes,
		Value: json.RawMessage(`["mid","final"]`),
	}
	types = svc.ExamTypes(context.Background())
	assert.Equal(t, []models.ExamType{"mid", "final"}, types)
}

func TestDeleteConfigNotFound(t *testing.T) {
	svc, _ := newConfigFixture()

	err := svc.Delete(context.Background(), "MISSING")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
