// Package journal keeps an append-only history of weigh-ins as a stream
// of CBOR records.
package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Entry is one recorded weigh-in.
type Entry struct {
	// ID identifies the entry across the journal and published copies.
	ID string `cbor:"1,keyasint"`
	// RecordedAt is the host clock when the measurement arrived.
	RecordedAt time.Time `cbor:"2,keyasint"`
	// ScaleTime is the timestamp the scale put in the frame, if any.
	ScaleTime *time.Time `cbor:"3,keyasint,omitempty"`

	WeightKg        float64  `cbor:"4,keyasint"`
	DisplayUnit     string   `cbor:"5,keyasint,omitempty"`
	Resistance1     *float64 `cbor:"6,keyasint,omitempty"`
	Resistance2     *float64 `cbor:"7,keyasint,omitempty"`
	UserNumber      *uint8   `cbor:"8,keyasint,omitempty"`
	ImpedanceStatus string   `cbor:"9,keyasint,omitempty"`

	Composition *Composition `cbor:"10,keyasint,omitempty"`
}

// Composition is a body composition estimate stored with an entry.
type Composition struct {
	Formula         string  `cbor:"1,keyasint"`
	BMI             float64 `cbor:"2,keyasint"`
	FatPercent      float64 `cbor:"3,keyasint"`
	WaterPercent    float64 `cbor:"4,keyasint"`
	MusclePercent   float64 `cbor:"5,keyasint,omitempty"`
	BonePercent     float64 `cbor:"6,keyasint,omitempty"`
	MuscleKg        float64 `cbor:"7,keyasint,omitempty"`
	BoneKg          float64 `cbor:"8,keyasint,omitempty"`
	BasalMetabolism float64 `cbor:"9,keyasint,omitempty"`
}

// FileJournal appends entries to a file. It is safe for concurrent use.
type FileJournal struct {
	mu     sync.Mutex
	file   *os.File
	enc    *cbor.Encoder
	closed bool
}

// Open opens the journal at path for appending, creating the file and its
// directory if needed.
func Open(path string) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &FileJournal{file: f, enc: newEncoder(f)}, nil
}

// Append writes one entry.
func (j *FileJournal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return errors.New("journal: append to closed journal")
	}
	if err := j.enc.Encode(e); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// Close closes the file. It is safe to call more than once.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}

// Reader streams entries from a journal file.
type Reader struct {
	file *os.File
	dec  *cbor.Decoder
}

// NewReader opens the journal at path for reading.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, dec: newDecoder(f)}, nil
}

// Next returns the next entry, or io.EOF at the end of the journal. A
// record cut short mid-write is reported as a decode error.
func (r *Reader) Next() (Entry, error) {
	var e Entry
	if err := r.dec.Decode(&e); err != nil {
		if err == io.EOF {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("journal: decode: %w", err)
	}
	return e, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll returns every entry in the journal at path, oldest first. A
// missing journal holds no entries.
func ReadAll(path string) ([]Entry, error) {
	r, err := NewReader(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer r.Close()

	var entries []Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}
