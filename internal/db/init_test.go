package db_test

import (
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/NikahPrep/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitPostgres_Unreachable(t *testing.T) {
	for _, dsn := range []string{"some=random", "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"} {
		_, err := db.InitPostgres(dsn)
		require.Error(t, err, dsn)
		assert.Contains(t, err.Error(), "ping postgres")
	}
}

func TestMigrate(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS users")).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, db.Migrate(conn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Error(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	err = db.Migrate(conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create schema")
}

func TestMigrate_OneCouplePerPartner(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE UNIQUE INDEX IF NOT EXISTS couples_partner_unique ON couples(partner_id) WHERE partner_id IS NOT NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, db.Migrate(conn))
	assert.NoError(t, mock.ExpectationsWereMet())
}
