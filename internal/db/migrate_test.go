package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrationsFS, migrationsDir+"/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		body, err := fs.ReadFile(migrationsFS, f)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", f)
		assert.Contains(t, string(body), "-- +goose Down", f)
	}
}

func TestInitMigrationEnforcesBookingInvariants(t *testing.T) {
	body, err := fs.ReadFile(migrationsFS, migrationsDir+"/00001_init.sql")
	require.NoError(t, err)
	sql := string(body)

	// One active appointment per slot
	assert.Contains(t, sql, "appointments_active_slot_uidx ON appointments (slot_id) WHERE status <> 'CANCELLED'")
	// No overlapping slots per doctor
	assert.Contains(t, sql, "schedule_slots_no_overlap EXCLUDE USING gist")
	// Booked state is derived, never stored
	assert.False(t, strings.Contains(sql, "is_booked") || strings.Contains(sql, "is_available"))
}
