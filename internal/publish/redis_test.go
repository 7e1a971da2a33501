package publish

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chaz8081/bodyscale/internal/journal"
)

func TestFieldsMinimalEntry(t *testing.T) {
	e := journal.Entry{
		ID:         "abc",
		RecordedAt: time.Date(2026, 10, 15, 7, 30, 0, 0, time.FixedZone("CEST", 2*3600)),
		WeightKg:   76,
	}

	assert.Equal(t, map[string]any{
		"id":          "abc",
		"recorded-at": "2026-10-15T05:30:00Z",
		"weight-kg":   "76.00",
	}, Fields(e))
}

func TestFieldsFullEntry(t *testing.T) {
	scaleTime := time.Date(2026, 10, 15, 5, 29, 58, 0, time.UTC)
	r1, r2 := 538.6, 512.3
	user := uint8(3)
	e := journal.Entry{
		ID:              "abc",
		RecordedAt:      time.Date(2026, 10, 15, 5, 30, 0, 0, time.UTC),
		ScaleTime:       &scaleTime,
		WeightKg:        76.04,
		DisplayUnit:     "kg",
		Resistance1:     &r1,
		Resistance2:     &r2,
		UserNumber:      &user,
		ImpedanceStatus: "finished",
		Composition: &journal.Composition{
			Formula:         "translate",
			BMI:             21.967,
			FatPercent:      19.08,
			WaterPercent:    53.91,
			MuscleKg:        58.294,
			BoneKg:          3.176,
			BasalMetabolism: 1772.003,
		},
	}

	f := Fields(e)
	assert.Equal(t, "2026-10-15T05:29:58Z", f["scale-time"])
	assert.Equal(t, "76.04", f["weight-kg"])
	assert.Equal(t, "538.60", f["resistance1"])
	assert.Equal(t, "512.30", f["resistance2"])
	assert.Equal(t, "3", f["user-number"])
	assert.Equal(t, "finished", f["impedance-status"])
	assert.Equal(t, "translate", f["formula"])
	assert.Equal(t, "21.97", f["bmi"])
	assert.Equal(t, "58.29", f["muscle-kg"])
	assert.Equal(t, "1772.00", f["basal-metabolism"])
	assert.NotContains(t, f, "muscle-percent")
	assert.NotContains(t, f, "bone-percent")
}
