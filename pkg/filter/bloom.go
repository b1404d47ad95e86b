package filter

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/vevoly/atomic-ledger/pkg/config"
)

// Bloom is the probabilistic idempotency filter. Contains may report a false
// positive at most at the configured rate — a genuinely new command is then
// wrongly rejected as a duplicate, which operators of very large keyspaces
// accept in exchange for O(bits_per_item) memory. It never reports a false
// negative, so the at-most-once guarantee holds unconditionally.
type Bloom struct {
	expectedN uint
	fpRate    float64
	added     uint64
	bf        *bloom.BloomFilter
}

// NewBloom creates a probabilistic filter sized for expectedN entries at the
// given false-positive rate.
func NewBloom(expectedN uint, fpRate float64) (*Bloom, error) {
	if expectedN == 0 {
		return nil, fmt.Errorf("filter: bloom expected_n must be positive")
	}
	if fpRate <= 0 || fpRate >= 1 {
		return nil, fmt.Errorf("filter: bloom fp_rate must be in (0, 1), got %g", fpRate)
	}
	return &Bloom{
		expectedN: expectedN,
		fpRate:    fpRate,
		bf:        bloom.NewWithEstimates(expectedN, fpRate),
	}, nil
}

// Contains implements Filter.
func (f *Bloom) Contains(txID string) bool {
	return f.bf.TestString(txID)
}

// Add implements Filter.
func (f *Bloom) Add(txID string) {
	f.bf.AddString(txID)
	f.added++
}

// Clear implements Filter.
func (f *Bloom) Clear() {
	f.bf.ClearAll()
	f.added = 0
}

// Len implements Filter. The count reflects Add calls, not distinct keys.
func (f *Bloom) Len() int {
	return int(f.added)
}

// Kind implements Filter.
func (f *Bloom) Kind() string {
	return config.FilterBloom
}

// MarshalBinary implements Filter. Layout: added count, expectedN, fpRate,
// then the bloom filter's own binary form.
func (f *Bloom) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, f.added); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint64(f.expectedN)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, f.fpRate); err != nil {
		return nil, err
	}
	if _, err := f.bf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("filter: failed to serialize bloom filter: %w", err)
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary implements Filter.
func (f *Bloom) UnmarshalBinary(data []byte) error {
	buf := bytes.NewReader(data)

	var added, expectedN uint64
	var fpRate float64
	if err := binary.Read(buf, binary.LittleEndian, &added); err != nil {
		return fmt.Errorf("filter: corrupt bloom snapshot: %w", err)
	}
	if err := binary.Read(buf, binary.LittleEndian, &expectedN); err != nil {
		return fmt.Errorf("filter: corrupt bloom snapshot: %w", err)
	}
	if err := binary.Read(buf, binary.LittleEndian, &fpRate); err != nil {
		return fmt.Errorf("filter: corrupt bloom snapshot: %w", err)
	}

	bf := &bloom.BloomFilter{}
	if _, err := bf.ReadFrom(buf); err != nil {
		return fmt.Errorf("filter: corrupt bloom snapshot: %w", err)
	}

	f.added = added
	f.expectedN = uint(expectedN)
	f.fpRate = fpRate
	f.bf = bf
	return nil
}
