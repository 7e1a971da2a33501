// internal/ble/protocol/measurement.go
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Header bits of a measurement frame. Optional fields follow the weight
// in this order; each one is present only if its bit is set.
const (
	flagTimestamp   = 1 << 0
	flagResistance1 = 1 << 1
	flagResistance2 = 1 << 2
	flagUserNumber  = 1 << 3
	flagStatus      = 1 << 4

	unitMask  = 0x60
	unitShift = 5
)

// Status byte bits.
const (
	statusWeightStable    = 1 << 0
	statusImpedanceMask   = 0x0e
	statusImpedanceShift  = 1
	statusHasAppendData   = 1 << 4
	measurementFixedBytes = 5
)

// DisplayUnit is the unit the scale shows on its display. The weight in a
// measurement is always kilograms regardless of this setting.
type DisplayUnit int

const (
	UnitKilogram DisplayUnit = iota
	UnitStone
	UnitPound
	UnitUnknown
)

func (u DisplayUnit) String() string {
	switch u {
	case UnitKilogram:
		return "kg"
	case UnitStone:
		return "st"
	case UnitPound:
		return "lb"
	default:
		return "unknown"
	}
}

// ImpedanceStatus reports the progress of the bio-impedance measurement.
type ImpedanceStatus int

const (
	ImpedanceIdle ImpedanceStatus = iota
	ImpedanceProcessing
	ImpedanceShoes
	ImpedanceBarefoot
	ImpedanceFinished
	ImpedanceError
	ImpedanceUnknown
)

func (s ImpedanceStatus) String() string {
	switch s {
	case ImpedanceIdle:
		return "idle"
	case ImpedanceProcessing:
		return "processing"
	case ImpedanceShoes:
		return "shoes"
	case ImpedanceBarefoot:
		return "barefoot"
	case ImpedanceFinished:
		return "finished"
	case ImpedanceError:
		return "error"
	default:
		return "unknown"
	}
}

// Measurement is a decoded weight scale measurement frame. Nil pointer
// fields were not present in the frame.
type Measurement struct {
	WeightKg        float64
	DisplayUnit     DisplayUnit
	Timestamp       *time.Time
	Resistance1     *float64
	Resistance2     *float64
	UserNumber      *uint8
	WeightStable    *bool
	ImpedanceStatus *ImpedanceStatus
	HasAppendData   *bool
}

// Stable reports whether the scale flagged the weight as settled.
func (m *Measurement) Stable() bool {
	return m.WeightStable != nil && *m.WeightStable
}

// DecodeFloat decodes the scale's 4-byte float: a 24-bit little-endian
// two's complement mantissa followed by a signed base-10 exponent.
func DecodeFloat(data []byte) (float64, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("%w: float is %d bytes, want 4", ErrMalformedFrame, len(data))
	}
	raw := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16
	mantissa := int32(raw<<8) >> 8
	exponent := int(int8(data[3]))

	if exponent < 0 {
		return float64(mantissa) / math.Pow10(-exponent), nil
	}
	return float64(mantissa) * math.Pow10(exponent), nil
}

// DecodeTimestamp decodes a little-endian int32 offset from EpochOffset.
func DecodeTimestamp(data []byte) (time.Time, error) {
	if len(data) != 4 {
		return time.Time{}, fmt.Errorf("%w: timestamp is %d bytes, want 4", ErrMalformedFrame, len(data))
	}
	offset := int32(binary.LittleEndian.Uint32(data))
	return time.Unix(int64(offset)+EpochOffset, 0).UTC(), nil
}

// DecodeMeasurement decodes a frame from the measurement characteristic.
//
//	byte 0     header: bits 0-4 gate optional fields, bits 5-6 display unit
//	bytes 1-4  weight (kg)
//	then, in header bit order: timestamp (4), resistance1 (4),
//	resistance2 (4), user number (1), status (1)
func DecodeMeasurement(data []byte) (*Measurement, error) {
	if len(data) < measurementFixedBytes {
		return nil, fmt.Errorf("%w: measurement is %d bytes, want at least %d", ErrMalformedFrame, len(data), measurementFixedBytes)
	}

	header := data[0]
	m := &Measurement{
		DisplayUnit: DisplayUnit((header & unitMask) >> unitShift),
	}
	m.WeightKg, _ = DecodeFloat(data[1:5])

	r := reader{data: data, off: measurementFixedBytes}

	if header&flagTimestamp != 0 {
		b, err := r.take(4, "timestamp")
		if err != nil {
			return nil, err
		}
		ts, _ := DecodeTimestamp(b)
		m.Timestamp = &ts
	}
	if header&flagResistance1 != 0 {
		b, err := r.take(4, "resistance1")
		if err != nil {
			return nil, err
		}
		v, _ := DecodeFloat(b)
		m.Resistance1 = &v
	}
	if header&flagResistance2 != 0 {
		b, err := r.take(4, "resistance2")
		if err != nil {
			return nil, err
		}
		v, _ := DecodeFloat(b)
		m.Resistance2 = &v
	}
	if header&flagUserNumber != 0 {
		b, err := r.take(1, "user number")
		if err != nil {
			return nil, err
		}
		n := b[0]
		m.UserNumber = &n
	}
	if header&flagStatus != 0 {
		b, err := r.take(1, "status")
		if err != nil {
			return nil, err
		}
		status := b[0]
		stable := status&statusWeightStable != 0
		impedance := ImpedanceStatus((status & statusImpedanceMask) >> statusImpedanceShift)
		if impedance > ImpedanceError {
			impedance = ImpedanceUnknown
		}
		appendData := status&statusHasAppendData != 0
		m.WeightStable = &stable
		m.ImpedanceStatus = &impedance
		m.HasAppendData = &appendData
	}

	return m, nil
}

// reader walks the optional section of a measurement frame.
type reader struct {
	data []byte
	off  int
}

func (r *reader) take(n int, field string) ([]byte, error) {
	if len(r.data)-r.off < n {
		return nil, fmt.Errorf("%w: %s needs %d bytes at offset %d, frame is %d bytes", ErrTruncatedFrame, field, n, r.off, len(r.data))
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}
