package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/subscription-intake/pkg/observability"
	"github.com/platinummonkey/subscription-intake/pkg/storage"
)

func testRecord() *storage.Record {
	return &storage.Record{
		UserPhoneID:    "u1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Email:          "a@b.com",
		Name:           "A B",
		CreatedAt:      time.Date(2024, 3, 1, 12, 30, 45, 123000000, time.UTC),
	}
}

func TestStore_PutRecord_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO subscription_records").
		WithArgs("u1", "cus_1", "sub_1", "a@b.com", "A B", "2024-03-01T12:30:45.123Z").
		WillReturnResult(sqlmock.NewResult(0, 1))

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := NewWithDB(db, Postgres, metrics)

	require.NoError(t, store.PutRecord(context.Background(), testRecord()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, float64(1), testutil.ToFloat64(
		metrics.StorageOperationsTotal.WithLabelValues("put_record", storage.BackendPostgres, "success")))
}

func TestStore_PutRecord_PostgresError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbErr := errors.New("connection reset by peer")
	mock.ExpectExec("INSERT INTO subscription_records").WillReturnError(dbErr)

	store := NewWithDB(db, Postgres, nil)

	err = store.PutRecord(context.Background(), testRecord())
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Migrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS subscription_records").WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewWithDB(db, Postgres, nil)
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PutRecord_InvalidRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewWithDB(db, Postgres, nil)
	assert.ErrorIs(t, store.PutRecord(context.Background(), &storage.Record{}), storage.ErrInvalidRecord)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SQLiteUpsert(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, storage.SQLiteConfig{Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutRecord(ctx, testRecord()))

	second := testRecord()
	second.CustomerID = "cus_2"
	second.SubscriptionID = "sub_2"
	require.NoError(t, store.PutRecord(ctx, second))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subscription_records").Scan(&count))
	assert.Equal(t, 1, count)

	var customerID, subscriptionID, createdAt string
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT customer_id, subscription_id, created_at FROM subscription_records WHERE user_phone_id = ?", "u1",
	).Scan(&customerID, &subscriptionID, &createdAt))
	assert.Equal(t, "cus_2", customerID)
	assert.Equal(t, "sub_2", subscriptionID)
	assert.Equal(t, "2024-03-01T12:30:45.123Z", createdAt)

	assert.NoError(t, store.HealthCheck(ctx))
}

func TestOpenSQLite_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subscriptions.db")

	store, err := OpenSQLite(ctx, storage.SQLiteConfig{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, store.PutRecord(ctx, testRecord()))
	require.NoError(t, store.Close())

	// Reopening keeps the data and the schema migration is idempotent
	store, err = OpenSQLite(ctx, storage.SQLiteConfig{Path: path}, nil)
	require.NoError(t, err)
	defer store.Close()

	var email string
	require.NoError(t, store.db.QueryRowContext(ctx,
		"SELECT email FROM subscription_records WHERE user_phone_id = ?", "u1").Scan(&email))
	assert.Equal(t, "a@b.com", email)
}
