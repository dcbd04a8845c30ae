package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/event-waitlist/internal/model"
)

func seatLockRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "event_id", "seat_row", "seat_number", "user_email",
		"lock_time", "expiry_time", "version",
	})
}

func TestSeatLockRepo_FindActiveTx(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "active lock found",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT (.+) FROM temporary_seat_locks\s+WHERE event_id = \? AND seat_row = \? AND seat_number = \? AND expiry_time > \? FOR UPDATE`).
					WithArgs(uint64(7), 3, 12, now).
					WillReturnRows(seatLockRows().
						AddRow(5, 7, 3, 12, "alice@example.com", now.Add(-time.Minute), now.Add(4*time.Minute), 1))
			},
		},
		{
			name: "expired lock reads as absent",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT (.+) FROM temporary_seat_locks`).
					WithArgs(uint64(7), 3, 12, now).
					WillReturnRows(seatLockRows())
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			tx, err := db.BeginTx(ctx, nil)
			require.NoError(t, err)

			repo := NewSeatLockRepo(db)
			lock, err := repo.FindActiveTx(ctx, tx, 7, 3, 12, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "alice@example.com", lock.UserEmail)
			require.Equal(t, uint64(1), lock.Version)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSeatLockRepo_InsertTx(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("success populates id and version", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO temporary_seat_locks`).
			WithArgs(uint64(7), 3, 12, "alice@example.com", now, now.Add(5*time.Minute)).
			WillReturnResult(sqlmock.NewResult(9, 1))

		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)

		repo := NewSeatLockRepo(db)
		lock := &model.SeatLock{
			EventID: 7, SeatRow: 3, SeatNumber: 12, UserEmail: "alice@example.com",
			LockTime: now, ExpiryTime: now.Add(5 * time.Minute),
		}
		require.NoError(t, repo.InsertTx(ctx, tx, lock))
		require.Equal(t, uint64(9), lock.ID)
		require.Equal(t, uint64(1), lock.Version)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent insert loses the unique key race", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO temporary_seat_locks`).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)

		repo := NewSeatLockRepo(db)
		err = repo.InsertTx(ctx, tx, &model.SeatLock{
			EventID: 7, SeatRow: 3, SeatNumber: 12, UserEmail: "bob@example.com",
			LockTime: now, ExpiryTime: now.Add(5 * time.Minute),
		})
		require.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestSeatLockRepo_RenewTx(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "version matches", affected: 1, want: true},
		{name: "stale version loses the CAS", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectBegin()
			mock.ExpectExec(`UPDATE temporary_seat_locks SET lock_time = \?, expiry_time = \?, version = version \+ 1`).
				WithArgs(now, now.Add(5*time.Minute), uint64(9), uint64(1)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			tx, err := db.BeginTx(ctx, nil)
			require.NoError(t, err)

			repo := NewSeatLockRepo(db)
			ok, err := repo.RenewTx(ctx, tx, 9, 1, now, now.Add(5*time.Minute))
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSeatLockRepo_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM temporary_seat_locks WHERE expiry_time <= \?`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 4))

	repo := NewSeatLockRepo(db)
	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLockRepo_ActiveByEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM temporary_seat_locks\s+WHERE event_id = \? AND expiry_time > \?`).
		WithArgs(uint64(7), now).
		WillReturnRows(seatLockRows().
			AddRow(1, 7, 1, 1, "a@example.com", now.Add(-time.Minute), now.Add(4*time.Minute), 1).
			AddRow(2, 7, 1, 2, "b@example.com", now.Add(-time.Minute), now.Add(3*time.Minute), 2))

	repo := NewSeatLockRepo(db)
	locks, err := repo.ActiveByEvent(ctx, 7, now)
	require.NoError(t, err)
	require.Len(t, locks, 2)
	require.Equal(t, 1, locks[0].SeatRow)
	require.Equal(t, 2, locks[1].SeatNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}
