package journal

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func sampleEntry(id string, weight float64) Entry {
	return Entry{
		ID:          id,
		RecordedAt:  time.Date(2026, 10, 15, 7, 30, 0, 123456789, time.UTC),
		WeightKg:    weight,
		DisplayUnit: "kg",
	}
}

func TestEncodeDecodeFullEntry(t *testing.T) {
	scaleTime := time.Date(2026, 10, 15, 7, 29, 58, 0, time.UTC)
	in := Entry{
		ID:              "5f0c3c9e-1c1d-4d47-9d0e-0d6c1d2b9a11",
		RecordedAt:      time.Date(2026, 10, 15, 7, 30, 0, 5, time.UTC),
		ScaleTime:       &scaleTime,
		WeightKg:        76.0,
		DisplayUnit:     "kg",
		Resistance1:     ptr(538.6),
		Resistance2:     ptr(512.3),
		UserNumber:      ptr(uint8(2)),
		ImpedanceStatus: "finished",
		Composition: &Composition{
			Formula:       "standard",
			BMI:           21.97,
			FatPercent:    14.73,
			WaterPercent:  64.38,
			MusclePercent: 43.36,
			BonePercent:   4.53,
		},
	}

	data, err := EncodeEntry(in)
	require.NoError(t, err)
	out, err := DecodeEntry(data)
	require.NoError(t, err)

	assert.Equal(t, in.ID, out.ID)
	assert.True(t, in.RecordedAt.Equal(out.RecordedAt), "RecordedAt %v != %v", out.RecordedAt, in.RecordedAt)
	require.NotNil(t, out.ScaleTime)
	assert.True(t, scaleTime.Equal(*out.ScaleTime))
	assert.Equal(t, in.Resistance1, out.Resistance1)
	assert.Equal(t, in.UserNumber, out.UserNumber)
	assert.Equal(t, in.Composition, out.Composition)
}

func TestEncodeOmitsAbsentFields(t *testing.T) {
	data, err := EncodeEntry(sampleEntry("a", 70))
	require.NoError(t, err)

	out, err := DecodeEntry(data)
	require.NoError(t, err)
	assert.Nil(t, out.ScaleTime)
	assert.Nil(t, out.Resistance1)
	assert.Nil(t, out.Composition)

	var raw map[int]any
	require.NoError(t, decMode.Unmarshal(data, &raw))
	assert.NotContains(t, raw, 3)
	assert.NotContains(t, raw, 10)
}

func TestAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "measurements.cbor")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(sampleEntry("first", 76.0)))
	require.NoError(t, j.Append(sampleEntry("second", 75.8)))
	require.NoError(t, j.Close())

	// Reopening appends rather than truncating.
	j, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(sampleEntry("third", 75.5)))
	require.NoError(t, j.Close())

	entries, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].ID)
	assert.Equal(t, "third", entries[2].ID)
	assert.Equal(t, 75.8, entries[1].WeightKg)
}

func TestReaderNextEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "measurements.cbor")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReadAllMissingFile(t *testing.T) {
	entries, err := ReadAll(filepath.Join(t.TempDir(), "nope.cbor"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReadAllTruncatedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "measurements.cbor")
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(sampleEntry("whole", 76.0)))
	require.NoError(t, j.Close())

	partial, err := EncodeEntry(sampleEntry("cut", 75.0))
	require.NoError(t, err)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write(partial[:len(partial)/2])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := ReadAll(path)
	require.Error(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "whole", entries[0].ID)
}

func TestAppendAfterClose(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "measurements.cbor"))
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	assert.Error(t, j.Append(sampleEntry("late", 70)))
}
