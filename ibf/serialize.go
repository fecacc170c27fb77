package ibf

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/seqlab/hibf/bitvector"
)

// FormatVersion is the binary record version for a single IBF, per spec
// §6.3 ("version = 1 for IBF records").
const FormatVersion = 1

// ErrVersionMismatch is returned by UnmarshalBinary when the stored
// version does not match FormatVersion.
var ErrVersionMismatch = errors.New("ibf: version mismatch")

// MarshalBinary writes version, bins, technical_bins, bin_size,
// hash_shift, bin_words and hash_funs as little-endian uint64s, then a
// one-byte track_occupancy flag, then the bit-vector payload, then the
// occupancy counters prefixed by their count. The track_occupancy flag
// comes before the payload, not after the occupancy counters.
func (f *Filter) MarshalBinary() ([]byte, error) {
	payload, err := f.bits.MarshalBinary()
	if err != nil {
		return nil, err
	}

	header := make([]byte, 8*7+1)
	binary.LittleEndian.PutUint64(header[0:8], FormatVersion)
	binary.LittleEndian.PutUint64(header[8:16], f.bins)
	binary.LittleEndian.PutUint64(header[16:24], f.TechnicalBinCount())
	binary.LittleEndian.PutUint64(header[24:32], f.binSizeBits)
	binary.LittleEndian.PutUint64(header[32:40], f.hashShift)
	binary.LittleEndian.PutUint64(header[40:48], f.binWords)
	binary.LittleEndian.PutUint64(header[48:56], f.hashCount)
	if f.trackOccup {
		header[56] = 1
	}

	out := append(header, payload...)
	occLen := make([]byte, 8)
	binary.LittleEndian.PutUint64(occLen, uint64(len(f.occupancy)))
	out = append(out, occLen...)
	for _, v := range f.occupancy {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		out = append(out, b...)
	}
	return out, nil
}

// UnmarshalBinary reads the format written by MarshalBinary.
func (f *Filter) UnmarshalBinary(data []byte) error {
	if len(data) < 57 {
		return errors.New("ibf: short buffer")
	}
	version := binary.LittleEndian.Uint64(data[0:8])
	if version != FormatVersion {
		return ErrVersionMismatch
	}
	f.bins = binary.LittleEndian.Uint64(data[8:16])
	technicalBins := binary.LittleEndian.Uint64(data[16:24])
	f.binSizeBits = binary.LittleEndian.Uint64(data[24:32])
	f.hashShift = binary.LittleEndian.Uint64(data[32:40])
	f.binWords = binary.LittleEndian.Uint64(data[40:48])
	f.hashCount = binary.LittleEndian.Uint64(data[48:56])
	trackOccup := data[56] != 0

	rest := data[57:]
	payloadWords := divCeil(technicalBins*f.binSizeBits, wordBits)
	payloadLen := 8 + 8*int(payloadWords)
	if len(rest) < payloadLen {
		return errors.New("ibf: truncated bit-vector payload")
	}
	var bv bitvector.Vector
	if err := bv.UnmarshalBinary(rest[:payloadLen]); err != nil {
		return err
	}
	f.bits = &bv
	rest = rest[payloadLen:]

	if len(rest) < 8 {
		return errors.New("ibf: truncated occupancy length")
	}
	occLen := binary.LittleEndian.Uint64(rest[0:8])
	rest = rest[8:]
	if uint64(len(rest)) < 8*occLen {
		return errors.New("ibf: truncated occupancy payload")
	}
	if occLen > 0 {
		f.occupancy = make([]uint64, occLen)
		for i := range f.occupancy {
			f.occupancy[i] = binary.LittleEndian.Uint64(rest[8*i : 8*i+8])
		}
	} else {
		f.occupancy = nil
	}
	f.trackOccup = trackOccup
	return nil
}

// Equal reports whether f and other represent the same logical filter
// (used by serialisation round-trip tests).
func (f *Filter) Equal(other *Filter) bool {
	if f.bins != other.bins || f.binSizeBits != other.binSizeBits ||
		f.hashShift != other.hashShift || f.binWords != other.binWords ||
		f.hashCount != other.hashCount || f.trackOccup != other.trackOccup {
		return false
	}
	if f.bits.Len() != other.bits.Len() {
		return false
	}
	for i := uint64(0); i < f.bits.Len(); i++ {
		if f.bits.Get(i) != other.bits.Get(i) {
			return false
		}
	}
	if len(f.occupancy) != len(other.occupancy) {
		return false
	}
	for i := range f.occupancy {
		if f.occupancy[i] != other.occupancy[i] {
			return false
		}
	}
	return true
}
