package hibf

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/seqlab/hibf/ibf"
)

// FormatVersion is the binary record version for the whole index.
const FormatVersion = 1

// MarshalBinary writes the fields in the order specified by spec §6.3:
// number_of_user_bins, ibfs[], child_of[], bin_to_user[]. parent_of is
// reconstructed from child_of on load rather than stored, since it is
// fully determined by it.
func (idx *Index) MarshalBinary() ([]byte, error) {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[0:8], FormatVersion)
	binary.LittleEndian.PutUint64(out[8:16], idx.NumberOfUserBins)

	out = appendUint64(out, uint64(len(idx.ibfs)))
	for _, f := range idx.ibfs {
		b, err := f.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = appendUint64(out, uint64(len(b)))
		out = append(out, b...)
	}

	for _, row := range idx.childOf {
		out = appendUint64(out, uint64(len(row)))
		for _, v := range row {
			out = appendUint32(out, v)
		}
	}

	for _, row := range idx.binToUser {
		out = appendUint64(out, uint64(len(row)))
		for _, v := range row {
			out = appendInt64(out, v)
		}
	}

	return out, nil
}

// UnmarshalBinary reads the format written by MarshalBinary.
func (idx *Index) UnmarshalBinary(data []byte) error {
	if len(data) < 16 {
		return errors.New("hibf: short buffer")
	}
	version := binary.LittleEndian.Uint64(data[0:8])
	if version != FormatVersion {
		return ErrVersionMismatch
	}
	idx.NumberOfUserBins = binary.LittleEndian.Uint64(data[8:16])
	rest := data[16:]

	n, rest, err := readUint64(rest)
	if err != nil {
		return err
	}
	idx.ibfs = make([]*ibf.Filter, n)
	for i := range idx.ibfs {
		var ln uint64
		ln, rest, err = readUint64(rest)
		if err != nil {
			return err
		}
		if uint64(len(rest)) < ln {
			return errors.New("hibf: truncated ibf payload")
		}
		f := &ibf.Filter{}
		if err := f.UnmarshalBinary(rest[:ln]); err != nil {
			return err
		}
		idx.ibfs[i] = f
		rest = rest[ln:]
	}

	idx.childOf = make([][]uint32, n)
	for i := range idx.childOf {
		var rowLen uint64
		rowLen, rest, err = readUint64(rest)
		if err != nil {
			return err
		}
		row := make([]uint32, rowLen)
		for j := range row {
			var v uint32
			v, rest, err = readUint32(rest)
			if err != nil {
				return err
			}
			row[j] = v
		}
		idx.childOf[i] = row
	}

	idx.binToUser = make([][]int64, n)
	for i := range idx.binToUser {
		var rowLen uint64
		rowLen, rest, err = readUint64(rest)
		if err != nil {
			return err
		}
		row := make([]int64, rowLen)
		for j := range row {
			var v int64
			v, rest, err = readInt64(rest)
			if err != nil {
				return err
			}
			row[j] = v
		}
		idx.binToUser[i] = row
	}

	idx.parentOf = parentOfFromChildOf(idx.childOf)
	return nil
}

// parentOfFromChildOf rebuilds the parent-pointer array: IBF j is the
// parent of IBF i via bin b iff childOf[j][b] == i and i != j.
func parentOfFromChildOf(childOf [][]uint32) []*ParentRef {
	parentOf := make([]*ParentRef, len(childOf))
	for j, row := range childOf {
		for b, i := range row {
			if uint64(i) == uint64(j) {
				continue
			}
			parentOf[i] = &ParentRef{IBF: uint32(j), Bin: uint64(b)}
		}
	}
	return parentOf
}

func appendUint64(out []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(out, b[:]...)
}

func appendUint32(out []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(out, b[:]...)
}

func appendInt64(out []byte, v int64) []byte {
	return appendUint64(out, uint64(v))
}

func readUint64(data []byte) (uint64, []byte, error) {
	if len(data) < 8 {
		return 0, nil, errors.New("hibf: truncated uint64")
	}
	return binary.LittleEndian.Uint64(data[:8]), data[8:], nil
}

func readUint32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, errors.New("hibf: truncated uint32")
	}
	return binary.LittleEndian.Uint32(data[:4]), data[4:], nil
}

func readInt64(data []byte) (int64, []byte, error) {
	v, rest, err := readUint64(data)
	return int64(v), rest, err
}
