// Package publish pushes recorded weigh-ins to Redis so other services
// can pick them up.
package publish

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chaz8081/bodyscale/internal/journal"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Key names both the hash holding the latest entry and the channel
	// notified on every update.
	Key string
}

// RedisPublisher writes the latest entry to a hash and publishes the
// entry id on a channel of the same name.
type RedisPublisher struct {
	client *redis.Client
	key    string
}

// NewRedis connects to Redis and checks the connection.
func NewRedis(ctx context.Context, opts Options) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("publish: connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisPublisher{client: client, key: opts.Key}, nil
}

// Publish stores e under the configured key and notifies subscribers in
// one pipeline round trip.
func (p *RedisPublisher) Publish(ctx context.Context, e journal.Entry) error {
	pipe := p.client.Pipeline()
	pipe.Del(ctx, p.key)
	pipe.HSet(ctx, p.key, Fields(e))
	pipe.Publish(ctx, p.key, "measurement:"+e.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Fields flattens an entry into hash fields. Absent optional values are
// left out.
func Fields(e journal.Entry) map[string]any {
	f := map[string]any{
		"id":          e.ID,
		"recorded-at": e.RecordedAt.UTC().Format(time.RFC3339),
		"weight-kg":   formatFloat(e.WeightKg),
	}
	if e.DisplayUnit != "" {
		f["display-unit"] = e.DisplayUnit
	}
	if e.ScaleTime != nil {
		f["scale-time"] = e.ScaleTime.UTC().Format(time.RFC3339)
	}
	if e.Resistance1 != nil {
		f["resistance1"] = formatFloat(*e.Resistance1)
	}
	if e.Resistance2 != nil {
		f["resistance2"] = formatFloat(*e.Resistance2)
	}
	if e.UserNumber != nil {
		f["user-number"] = strconv.Itoa(int(*e.UserNumber))
	}
	if e.ImpedanceStatus != "" {
		f["impedance-status"] = e.ImpedanceStatus
	}

	if c := e.Composition; c != nil {
		f["formula"] = c.Formula
		f["bmi"] = formatFloat(c.BMI)
		f["fat-percent"] = formatFloat(c.FatPercent)
		f["water-percent"] = formatFloat(c.WaterPercent)
		optional := map[string]float64{
			"muscle-percent":   c.MusclePercent,
			"bone-percent":     c.BonePercent,
			"muscle-kg":        c.MuscleKg,
			"bone-kg":          c.BoneKg,
			"basal-metabolism": c.BasalMetabolism,
		}
		for name, v := range optional {
			if v != 0 {
				f[name] = formatFloat(v)
			}
		}
	}
	return f
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
