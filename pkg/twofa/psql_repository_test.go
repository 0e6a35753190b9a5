package twofa

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDatabase(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	// Create PostgreSQL container
	dbName := "twofa_db"
	dbUser := "twofa"
	dbPassword := "pwd"

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithInitScripts(filepath.Join("../../migrations", "twofa_db.sql")),
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err)

	// Generate the connection string
	connString, err := container.ConnectionString(ctx)
	fmt.Println("Connection string:", connString)
	require.NoError(t, err)

	// Create connection pool
	poolConfig, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

func TestPostgresTwoFARepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres repository test in short mode")
	}

	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	repo := NewPostgresTwoFARepository(pool)
	ctx := context.Background()

	t.Run("UpsertAndGet", func(t *testing.T) {
		subjectID := uuid.New()
		enrollment := testEnrollment(subjectID)

		require.NoError(t, repo.UpsertEnrollment(ctx, enrollment))

		got, err := repo.GetEnrollment(ctx, subjectID)
		require.NoError(t, err)
		assert.Equal(t, subjectID, got.SubjectID)
		assert.Equal(t, StateEnrolled, got.State)
		assert.Equal(t, "JBSWY3DPEHPK3PXP", got.TotpSecret)
		assert.Equal(t, "simple-2fa", got.IssuerLabel)
		require.Len(t, got.BackupCodes, 2)
		assert.True(t, got.BackupCodes[1].Used)
		assert.NotNil(t, got.BackupCodes[1].UsedAt)
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		subjectID := uuid.New()
		enrollment := testEnrollment(subjectID)
		require.NoError(t, repo.UpsertEnrollment(ctx, enrollment))

		enrollment.State = StateDisabled
		enrollment.BackupCodes = nil
		require.NoError(t, repo.UpsertEnrollment(ctx, enrollment))

		got, err := repo.GetEnrollment(ctx, subjectID)
		require.NoError(t, err)
		assert.Equal(t, StateDisabled, got.State)
		assert.Empty(t, got.BackupCodes)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := repo.GetEnrollment(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrEnrollmentNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		subjectID := uuid.New()
		require.NoError(t, repo.UpsertEnrollment(ctx, testEnrollment(subjectID)))

		require.NoError(t, repo.DeleteEnrollment(ctx, subjectID))

		_, err := repo.GetEnrollment(ctx, subjectID)
		assert.ErrorIs(t, err, ErrEnrollmentNotFound)

		err = repo.DeleteEnrollment(ctx, subjectID)
		assert.ErrorIs(t, err, ErrEnrollmentNotFound)
	})
}
