package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/certscan/pkg/certs"
)

func TestSQLLedgerInit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS notified_certs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	sl := NewSQLLedger(db)
	require.NoError(t, sl.Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerPolicy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"bucket", "environment", "serial"}).
		AddRow("Maerz/2024", "prod", "AB12").
		AddRow("Maerz/2024", "prod", "CD34").
		AddRow("April/2024", "test", "EF56")
	mock.ExpectQuery("SELECT bucket, environment, serial FROM notified_certs").
		WithArgs("PAY").
		WillReturnRows(rows)

	sl := NewSQLLedger(db)
	snapshot, err := sl.Policy(context.Background(), "PAY")
	require.NoError(t, err)

	assert.Equal(t, []string{"AB12", "CD34"}, snapshot["Maerz/2024"]["prod"])
	assert.Equal(t, []string{"EF56"}, snapshot["April/2024"]["test"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerLookup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("PAY", "Maerz/2024", "prod", "AB12").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("PAY", "Maerz/2024", "prod", "CD34").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	sl := NewSQLLedger(db)
	found, err := sl.Lookup(context.Background(), "PAY", "Maerz/2024", "prod", "AB12")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = sl.Lookup(context.Background(), "PAY", "Maerz/2024", "prod", "CD34")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerRecordPolicy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	notAfter := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	content := certs.EnvironmentContent{"prod": {record("AB12", notAfter)}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notified_certs").
		WithArgs("PAY", "Maerz/2024", "prod", "AB12").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	sl := NewSQLLedger(db)
	require.NoError(t, sl.RecordPolicy(context.Background(), "PAY", content))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerRecordPolicyRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	notAfter := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	content := certs.EnvironmentContent{"prod": {record("AB12", notAfter)}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO notified_certs").
		WithArgs("PAY", "Maerz/2024", "prod", "AB12").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	sl := NewSQLLedger(db)
	err = sl.RecordPolicy(context.Background(), "PAY", content)
	assert.ErrorIs(t, err, ErrLedgerIO)
	assert.NoError(t, mock.ExpectationsWereMet())
}
