package curriculum

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/learnmate-backend/internal/data/repos/testutil"
	types "github.com/yungbote/learnmate-backend/internal/domain"
)

func TestCurriculumRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := testutil.Ctx(tx)
	repo := NewCurriculumRepo(db, testutil.Logger(t))

	userID := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	older := &types.Curriculum{
		UserID:    userID,
		SessionID: "s-1",
		Topic:     "React",
		Document:  datatypes.JSON([]byte(`{"title":"old"}`)),
		CreatedAt: base,
		UpdatedAt: base,
	}
	newer := &types.Curriculum{
		UserID:    userID,
		SessionID: "s-1",
		Topic:     "React",
		Fallback:  true,
		Document:  datatypes.JSON([]byte(`{"title":"new"}`)),
		CreatedAt: base.Add(time.Hour),
		UpdatedAt: base.Add(time.Hour),
	}
	other := &types.Curriculum{
		SessionID: "s-2",
		Topic:     "Go",
		Document:  datatypes.JSON([]byte(`{}`)),
		CreatedAt: base.Add(2 * time.Hour),
		UpdatedAt: base.Add(2 * time.Hour),
	}

	created, err := repo.Create(dbc, []*types.Curriculum{older, newer, other})
	require.NoError(t, err)
	require.Len(t, created, 3)
	for _, c := range created {
		assert.NotEqual(t, uuid.Nil, c.ID)
	}

	got, err := repo.GetByID(dbc, newer.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Fallback)
	assert.JSONEq(t, `{"title":"new"}`, string(got.Document))

	missing, err := repo.GetByID(dbc, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	bySession, err := repo.ListBySession(dbc, "s-1")
	require.NoError(t, err)
	require.Len(t, bySession, 2)
	assert.Equal(t, newer.ID, bySession[0].ID)
	assert.Equal(t, older.ID, bySession[1].ID)

	byUser, err := repo.ListByUser(dbc, userID, 1)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, newer.ID, byUser[0].ID)

	anon, err := repo.ListByUser(dbc, uuid.Nil, 0)
	require.NoError(t, err)
	assert.Empty(t, anon)

	have, err := repo.SessionsWithCurriculum(dbc, []string{"s-1", "s-3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"s-1": true}, have)
}

func TestCurriculumRepoEmptyCreate(t *testing.T) {
	db := testutil.DB(t)
	repo := NewCurriculumRepo(db, testutil.Logger(t))
	out, err := repo.Create(testutil.Ctx(db), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
