//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/DelfimCelestino/dinex/internal/license"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *DB

func dockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	return cmd.Run() == nil
}

func TestMain(m *testing.M) {
	if !dockerAvailable() {
		fmt.Println("Docker is not available, skipping integration tests")
		os.Exit(0)
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("dinex_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to get connection string: %v", err)
	}

	logger := zerolog.New(zerolog.NewConsoleWriter())
	cfg := DefaultConfig(connStr)
	cfg.MaxConns = 5
	cfg.MinConns = 1

	testDB, err = New(ctx, cfg, logger)
	if err != nil {
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := testDB.Migrate(ctx); err != nil {
		testDB.Close()
		pgContainer.Terminate(ctx)
		log.Fatalf("failed to run migrations: %v", err)
	}

	code := m.Run()

	testDB.Close()
	pgContainer.Terminate(ctx)

	os.Exit(code)
}

func insertTestLicense(t *testing.T, key string) *license.License {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	lic := &license.License{
		LicenseKey:  key,
		ClientName:  "Restaurante Integracao",
		ClientEmail: "dono@example.com",
		HardwareID:  "hw-integration",
		MachineName: "caixa-1",
		IssuedAt:    now,
		ExpiresAt:   now.Add(30 * 24 * time.Hour),
		Version:     "1.0.0",
		Features:    `{"reports":true}`,
		Signature:   "sig-integration",
		IsActive:    true,
	}
	require.NoError(t, testDB.CreateLicense(context.Background(), lic))
	return lic
}

func TestLicenseCRUD(t *testing.T) {
	ctx := context.Background()
	lic := insertTestLicense(t, "11111111111111111111111111111111")

	assert.Equal(t, 1000, lic.MaxValidations, "store-side default ceiling applies")
	assert.Zero(t, lic.ValidationCount)

	t.Run("get by key", func(t *testing.T) {
		got, err := testDB.GetLicenseByKey(ctx, lic.LicenseKey)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, lic.ClientName, got.ClientName)
		assert.True(t, got.IsActive)
		assert.Nil(t, got.LastValidation)
	})

	t.Run("get missing key", func(t *testing.T) {
		got, err := testDB.GetLicenseByKey(ctx, "ffffffffffffffffffffffffffffffff")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("duplicate key rejected by unique constraint", func(t *testing.T) {
		dup := *lic
		dup.ID = uuid.Nil
		err := testDB.CreateLicense(ctx, &dup)
		assert.Error(t, err)
	})

	t.Run("update administrative fields", func(t *testing.T) {
		inactive := false
		maxValidations := 7
		got, err := testDB.UpdateLicense(ctx, lic.LicenseKey, &inactive, &maxValidations)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.IsActive)
		assert.Equal(t, 7, got.MaxValidations)

		active := true
		got, err = testDB.UpdateLicense(ctx, lic.LicenseKey, &active, nil)
		require.NoError(t, err)
		assert.True(t, got.IsActive)
		assert.Equal(t, 7, got.MaxValidations, "nil fields stay unchanged")
	})

	t.Run("update missing key", func(t *testing.T) {
		active := true
		got, err := testDB.UpdateLicense(ctx, "ffffffffffffffffffffffffffffffff", &active, nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("list", func(t *testing.T) {
		licenses, err := testDB.ListLicenses(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, licenses)
	})

	t.Run("delete", func(t *testing.T) {
		found, err := testDB.DeleteLicense(ctx, lic.LicenseKey)
		require.NoError(t, err)
		assert.True(t, found)

		found, err = testDB.DeleteLicense(ctx, lic.LicenseKey)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestConsumeValidationQuota(t *testing.T) {
	ctx := context.Background()
	lic := insertTestLicense(t, "22222222222222222222222222222222")

	limit := 3
	_, err := testDB.UpdateLicense(ctx, lic.LicenseKey, nil, &limit)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		got, err := testDB.ConsumeValidation(ctx, lic.LicenseKey)
		require.NoError(t, err)
		require.NotNil(t, got, "validation %d should be inside the quota", i)
		assert.Equal(t, i, got.ValidationCount)
		assert.NotNil(t, got.LastValidation)
	}

	got, err := testDB.ConsumeValidation(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.Nil(t, got, "conditional update must not match once the quota is exhausted")

	stored, err := testDB.GetLicenseByKey(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ValidationCount, "counter never overruns the ceiling")
}

func TestConsumeValidationConcurrent(t *testing.T) {
	ctx := context.Background()
	lic := insertTestLicense(t, "33333333333333333333333333333333")

	limit := 10
	_, err := testDB.UpdateLicense(ctx, lic.LicenseKey, nil, &limit)
	require.NoError(t, err)

	const attempts = 25
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			got, err := testDB.ConsumeValidation(ctx, lic.LicenseKey)
			results <- err == nil && got != nil
		}()
	}

	consumed := 0
	for i := 0; i < attempts; i++ {
		if <-results {
			consumed++
		}
	}

	assert.Equal(t, 10, consumed, "exactly max_validations attempts may succeed under contention")

	stored, err := testDB.GetLicenseByKey(ctx, lic.LicenseKey)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.ValidationCount)
}

func TestGetExpiredActiveLicenses(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	expired := &license.License{
		LicenseKey: "44444444444444444444444444444444",
		ClientName: "Fechado Ha Muito",
		HardwareID: "hw-expired",
		IssuedAt:   now.Add(-48 * time.Hour),
		ExpiresAt:  now.Add(-24 * time.Hour),
		Signature:  "sig",
		IsActive:   true,
	}
	require.NoError(t, testDB.CreateLicense(ctx, expired))

	licenses, err := testDB.GetExpiredActiveLicenses(ctx)
	require.NoError(t, err)

	keys := make([]string, 0, len(licenses))
	for _, l := range licenses {
		keys = append(keys, l.LicenseKey)
	}
	assert.Contains(t, keys, expired.LicenseKey)
}
