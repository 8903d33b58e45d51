package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-booking-api/internal/models"
	"github.com/noah-isme/clinic-booking-api/pkg/timegrid"
)

func TestAvailabilityRepositoryGetWeeklyTemplate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	rows := sqlmock.NewRows([]string{"therapist_id", "weekday", "start_minute", "end_minute"}).
		AddRow("t1", "monday", 540, 720).
		AddRow("t1", "monday", 780, 1020).
		AddRow("t1", "friday", 540, 600)
	mock.ExpectQuery("FROM therapist_weekly_availability WHERE therapist_id = \\$1 ORDER BY").
		WithArgs("t1").
		WillReturnRows(rows)

	tpl, err := repo.GetWeeklyTemplate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []timegrid.Interval{{Start: 540, End: 720}, {Start: 780, End: 1020}}, tpl.Days["monday"])
	assert.Len(t, tpl.Days["friday"], 1)
	assert.Empty(t, tpl.Days["sunday"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryReplaceWeeklyTemplate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	tpl := &models.WeeklyTemplate{
		TherapistID: "t1",
		Days: map[string][]timegrid.Interval{
			"tuesday": {{Start: 540, End: 600}},
			"monday":  {{Start: 480, End: 720}},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM therapist_weekly_availability WHERE therapist_id = $1")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO therapist_weekly_availability").
		WithArgs("t1", "monday", 480, 720).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO therapist_weekly_availability").
		WithArgs("t1", "tuesday", 540, 600).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceWeeklyTemplate(context.Background(), tpl))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryReplaceWeeklyTemplateRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	tpl := &models.WeeklyTemplate{TherapistID: "t1", Days: map[string][]timegrid.Interval{"monday": {{Start: 480, End: 720}}}}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM therapist_weekly_availability").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO therapist_weekly_availability").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	require.Error(t, repo.ReplaceWeeklyTemplate(context.Background(), tpl))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryFindException(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "therapist_id", "date", "closed", "intervals", "created_at", "updated_at"}).
		AddRow("e1", "t1", "2026-03-02", false, []byte(`[{"start":600,"end":660}]`), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM therapist_day_exceptions WHERE therapist_id = $1 AND date = $2::date")).
		WithArgs("t1", "2026-03-02").
		WillReturnRows(rows)

	exc, err := repo.FindException(context.Background(), "t1", "2026-03-02")
	require.NoError(t, err)
	require.NotNil(t, exc)
	assert.Equal(t, []timegrid.Interval{{Start: 600, End: 660}}, exc.Parsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryFindExceptionMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectQuery("FROM therapist_day_exceptions").WillReturnError(sql.ErrNoRows)

	exc, err := repo.FindException(context.Background(), "t1", "2026-03-02")
	require.NoError(t, err)
	assert.Nil(t, exc)
}

func TestAvailabilityRepositoryUpsertClosedException(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO therapist_day_exceptions").
		WithArgs(sqlmock.AnyArg(), "t1", "2026-03-02", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("e-existing", created))

	exc := &models.DayException{
		TherapistID: "t1",
		Date:        "2026-03-02",
		Closed:      true,
		Parsed:      []timegrid.Interval{{Start: 540, End: 600}},
	}
	require.NoError(t, repo.UpsertException(context.Background(), exc))
	assert.Equal(t, "e-existing", exc.ID)
	assert.Equal(t, created, exc.CreatedAt)
	assert.Empty(t, exc.Parsed)
	assert.JSONEq(t, `[]`, string(exc.Intervals))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryDeleteException(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec("DELETE FROM therapist_day_exceptions").
		WithArgs("t1", "2026-03-02").
		WillReturnResult(sqlmock.NewResult(0, 0))

	existed, err := repo.DeleteException(context.Background(), "t1", "2026-03-02")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
