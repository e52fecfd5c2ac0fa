package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	petDomain "github.com/petwelfare/service-agetracker/internal/domain/pet"
)

func newMockPetRepo(t *testing.T) (*GormPetRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)
	return NewGormPetRepository(db), mock
}

func TestGormPetRepository_Exists(t *testing.T) {
	repo, mock := newMockPetRepo(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "pets" WHERE pet_code = \$1 AND status = \$2`).
		WithArgs("P1", "active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := repo.Exists(context.Background(), "P1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormPetRepository_FindByCodes(t *testing.T) {
	repo, mock := newMockPetRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "pets" WHERE pet_code IN \(\$1,\$2\) AND status = \$3`).
		WithArgs("P1", "P2", "active").
		WillReturnRows(sqlmock.NewRows([]string{"pet_code", "name", "species", "breed", "status", "synced_at", "created_at"}).
			AddRow("P1", "Milo", "dog", "beagle", "active", fixedNow, fixedNow))

	found, err := repo.FindByCodes(context.Background(), []string{"P1", "P2"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Milo", found["P1"].Name())
	assert.NoError(t, mock.ExpectationsWereMet())

	empty, err := repo.FindByCodes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGormPetRepository_Upsert(t *testing.T) {
	repo, mock := newMockPetRepo(t)
	p, err := petDomain.NewPet("P1", "Milo", "dog", "beagle", fixedNow)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO "pets" .* ON CONFLICT \("pet_code"\) DO UPDATE SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormPetRepository_MarkRemoved(t *testing.T) {
	repo, mock := newMockPetRepo(t)

	mock.ExpectExec(`UPDATE "pets" SET .* WHERE pet_code = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkRemoved(context.Background(), "P1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
