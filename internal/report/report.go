// Package report turns decoded measurements into recorded weigh-ins.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/bodyscale/internal/ble"
	"github.com/chaz8081/bodyscale/internal/ble/protocol"
	"github.com/chaz8081/bodyscale/internal/bodycomp"
	"github.com/chaz8081/bodyscale/internal/journal"
)

// Appender stores recorded entries.
type Appender interface {
	Append(e journal.Entry) error
}

// Publisher forwards recorded entries to other services.
type Publisher interface {
	Publish(ctx context.Context, e journal.Entry) error
}

// Options configures a Reporter. Every field is optional.
type Options struct {
	Logger *slog.Logger
	// Profile enables body composition estimates when set.
	Profile *bodycomp.Profile
	Journal Appender
	// Publisher is given PublishTimeout (default 5s) per entry.
	Publisher      Publisher
	PublishTimeout time.Duration
	Now            func() time.Time
	NewID          func() string
}

// Reporter is the session's measurement sink. It logs every frame and
// records settled readings that carry a resistance.
type Reporter struct {
	log            *slog.Logger
	profile        *bodycomp.Profile
	journal        Appender
	publisher      Publisher
	publishTimeout time.Duration
	now            func() time.Time
	newID          func() string

	last *journal.Entry
}

var _ ble.MeasurementSink = (*Reporter)(nil)

// New creates a Reporter.
func New(opts Options) *Reporter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Reporter{
		log:            opts.Logger,
		profile:        opts.Profile,
		journal:        opts.Journal,
		publisher:      opts.Publisher,
		publishTimeout: opts.PublishTimeout,
		now:            opts.Now,
		newID:          opts.NewID,
	}
}

// HandleMeasurement implements ble.MeasurementSink.
func (r *Reporter) HandleMeasurement(m *protocol.Measurement) error {
	r.log.Info("measurement", measurementAttrs(m)...)

	if !m.Stable() || m.Resistance1 == nil {
		return nil
	}

	e := NewEntry(m, r.now(), r.newID())
	if r.last != nil && sameReading(*r.last, e) {
		r.log.Debug("repeated reading, not recording", "weight_kg", e.WeightKg)
		return nil
	}

	if r.profile != nil {
		result, err := bodycomp.Estimate(*r.profile, m.WeightKg, *m.Resistance1)
		switch {
		case errors.Is(err, bodycomp.ErrNoImpedance):
			r.log.Debug("no usable impedance, skipping body composition")
		case err != nil:
			r.log.Warn("body composition failed", "error", err)
		default:
			e.Composition = composition(result)
			r.log.Info("body composition",
				"formula", result.Formula,
				"bmi", round2(result.BMI),
				"fat_percent", round2(result.FatPercent),
				"water_percent", round2(result.WaterPercent))
		}
	}

	var errs []error
	if r.journal != nil {
		if err := r.journal.Append(e); err != nil {
			errs = append(errs, fmt.Errorf("report: %w", err))
		}
	}
	if r.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
		err := r.publisher.Publish(ctx, e)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("report: %w", err))
		}
	}
	r.last = &e
	return errors.Join(errs...)
}

// NewEntry builds a journal entry from a decoded measurement.
func NewEntry(m *protocol.Measurement, recordedAt time.Time, id string) journal.Entry {
	e := journal.Entry{
		ID:          id,
		RecordedAt:  recordedAt.UTC(),
		WeightKg:    m.WeightKg,
		DisplayUnit: m.DisplayUnit.String(),
		Resistance1: m.Resistance1,
		Resistance2: m.Resistance2,
		UserNumber:  m.UserNumber,
	}
	if m.Timestamp != nil {
		ts := m.Timestamp.UTC()
		e.ScaleTime = &ts
	}
	if m.ImpedanceStatus != nil {
		e.ImpedanceStatus = m.ImpedanceStatus.String()
	}
	return e
}

// sameReading reports whether two entries describe the same weigh-in
// resent by the scale.
func sameReading(a, b journal.Entry) bool {
	if a.WeightKg != b.WeightKg || !equalPtr(a.Resistance1, b.Resistance1) || !equalPtr(a.Resistance2, b.Resistance2) {
		return false
	}
	if a.ScaleTime == nil || b.ScaleTime == nil {
		return a.ScaleTime == nil && b.ScaleTime == nil
	}
	return a.ScaleTime.Equal(*b.ScaleTime)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func composition(r bodycomp.Result) *journal.Composition {
	return &journal.Composition{
		Formula:         r.Formula.String(),
		BMI:             r.BMI,
		FatPercent:      r.FatPercent,
		WaterPercent:    r.WaterPercent,
		MusclePercent:   r.MusclePercent,
		BonePercent:     r.BonePercent,
		MuscleKg:        r.MuscleKg,
		BoneKg:          r.BoneKg,
		BasalMetabolism: r.BasalMetabolism,
	}
}

func measurementAttrs(m *protocol.Measurement) []any {
	attrs := []any{"weight_kg", m.WeightKg, "unit", m.DisplayUnit, "stable", m.Stable()}
	if m.Timestamp != nil {
		attrs = append(attrs, "scale_time", m.Timestamp.Format(time.RFC3339))
	}
	if m.Resistance1 != nil {
		attrs = append(attrs, "resistance1", *m.Resistance1)
	}
	if m.Resistance2 != nil {
		attrs = append(attrs, "resistance2", *m.Resistance2)
	}
	if m.UserNumber != nil {
		attrs = append(attrs, "user", *m.UserNumber)
	}
	if m.ImpedanceStatus != nil {
		attrs = append(attrs, "impedance", *m.ImpedanceStatus)
	}
	if m.HasAppendData != nil && *m.HasAppendData {
		attrs = append(attrs, "append_data", true)
	}
	return attrs
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
