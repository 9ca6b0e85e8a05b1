package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/civil"
)

func TestRunPopulatesMemoryStore(t *testing.T) {
	repo := appointment.NewMemoryRepository()
	opts := DefaultOptions()
	opts.Doctors = 3
	opts.Patients = 4
	opts.Days = 2
	opts.StartDate = civil.Date{Year: 2024, Month: 6, Day: 1}

	res, err := Run(context.Background(), repo, opts, zap.NewNop())
	require.NoError(t, err)

	assert.Len(t, res.Doctors, 3)
	assert.Len(t, res.Patients, 4)
	// 09:00-12:00 in 30 minute slots, two days, three doctors
	assert.Equal(t, 6*2*3, res.Slots)

	open, err := repo.ListOpenSlots(context.Background(), res.Doctors[0].ID, opts.StartDate)
	require.NoError(t, err)
	require.Len(t, open, 6)
	assert.Equal(t, "09:00:00", open[0].StartTime.String())
	assert.Equal(t, "12:00:00", open[5].EndTime.String())
}

func TestRunRejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.SlotMinutes = 0
	_, err := Run(context.Background(), appointment.NewMemoryRepository(), opts, zap.NewNop())
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.DayStart, opts.DayEnd = opts.DayEnd, opts.DayStart
	_, err = Run(context.Background(), appointment.NewMemoryRepository(), opts, zap.NewNop())
	assert.Error(t, err)
}
