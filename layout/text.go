package layout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// WriteText serialises lay (and cfg, if non-nil) to the line-oriented
// format of spec §6.2: an optional @HIBF_CONFIG JSON header, one
// #TOP_LEVEL_IBF / #LOWER_LEVEL_IBF_<path> section per tree node, each
// followed by its USER_BIN_IDX rows.
func WriteText(w io.Writer, lay *Layout, cfg *Config) error {
	bw := bufio.NewWriter(w)

	if cfg != nil {
		fmt.Fprintln(bw, "@HIBF_CONFIG")
		enc, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		for _, line := range strings.Split(string(enc), "\n") {
			fmt.Fprintln(bw, "@"+line)
		}
		fmt.Fprintln(bw, "@HIBF_CONFIG_END")
	}

	if err := writeLevel(bw, lay, nil); err != nil {
		return err
	}
	return bw.Flush()
}

func writeLevel(bw *bufio.Writer, lay *Layout, path []uint64) error {
	if len(path) == 0 {
		fmt.Fprintf(bw, "#TOP_LEVEL_IBF fullest_technical_bin_idx:%d\n", lay.FullestBin)
	} else {
		parts := make([]string, len(path))
		for i, p := range path {
			parts[i] = strconv.FormatUint(p, 10)
		}
		fmt.Fprintf(bw, "#LOWER_LEVEL_IBF_%s fullest_technical_bin_idx:%d\n", strings.Join(parts, ";"), lay.FullestBin)
	}

	fmt.Fprintln(bw, "#USER_BIN_IDX\tTECHNICAL_BIN_INDICES\tNUMBER_OF_TECHNICAL_BINS")
	for _, ub := range lay.UserBins {
		bins := make([]string, ub.SplitCount)
		ones := make([]string, ub.SplitCount)
		for i := uint64(0); i < ub.SplitCount; i++ {
			bins[i] = strconv.FormatUint(ub.StartTechnicalBin+i, 10)
			ones[i] = "1"
		}
		fmt.Fprintf(bw, "%d\t%s\t%s\n", ub.UserBinID, strings.Join(bins, ";"), strings.Join(ones, ";"))
	}

	for _, mb := range lay.MaxBins {
		child := lay.Children[mb.TechnicalBin]
		if child == nil {
			continue
		}
		childPath := append(append([]uint64{}, path...), mb.TechnicalBin)
		if err := writeLevel(bw, child, childPath); err != nil {
			return err
		}
	}
	return nil
}

// ReadText parses the format WriteText produces. cfgOut, if non-nil, is
// populated from the @HIBF_CONFIG block when present.
func ReadText(r io.Reader, cfgOut *Config) (*Layout, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<20)

	var jsonLines []string
	inConfig := false

	var top *Layout
	byPath := map[string]*Layout{}
	var cur *Layout

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "@HIBF_CONFIG":
			inConfig = true
			continue
		case line == "@HIBF_CONFIG_END":
			inConfig = false
			if cfgOut != nil && len(jsonLines) > 0 {
				if err := json.Unmarshal([]byte(strings.Join(jsonLines, "\n")), cfgOut); err != nil {
					return nil, errors.Wrap(err, "layout: decoding config header")
				}
			}
			continue
		case inConfig:
			jsonLines = append(jsonLines, strings.TrimPrefix(line, "@"))
			continue
		case strings.HasPrefix(line, "#TOP_LEVEL_IBF"):
			lay := &Layout{Children: map[uint64]*Layout{}}
			lay.FullestBin = parseFullest(line)
			top = lay
			byPath[""] = lay
			cur = lay
		case strings.HasPrefix(line, "#LOWER_LEVEL_IBF_"):
			rest := strings.TrimPrefix(line, "#LOWER_LEVEL_IBF_")
			fields := strings.Fields(rest)
			pathStr := fields[0]
			lay := &Layout{Children: map[uint64]*Layout{}}
			lay.FullestBin = parseFullest(line)
			byPath[pathStr] = lay

			parts := strings.Split(pathStr, ";")
			parentParts := parts[:len(parts)-1]
			parentKey := strings.Join(parentParts, ";")
			bin, err := strconv.ParseUint(parts[len(parts)-1], 10, 64)
			if err != nil {
				return nil, errors.Wrap(err, "layout: parsing lower-level path")
			}
			parent, ok := byPath[parentKey]
			if !ok {
				return nil, errors.Errorf("layout: parent path %q not seen before child", parentKey)
			}
			parent.Children[bin] = lay
			cur = lay
		case strings.HasPrefix(line, "#USER_BIN_IDX"):
			continue
		case strings.TrimSpace(line) == "":
			continue
		default:
			cols := strings.Split(line, "\t")
			if len(cols) != 3 {
				return nil, errors.Errorf("layout: malformed user-bin row %q", line)
			}
			userBinID, err := strconv.Atoi(cols[0])
			if err != nil {
				return nil, err
			}
			bins := strings.Split(cols[1], ";")
			start, err := strconv.ParseUint(bins[0], 10, 64)
			if err != nil {
				return nil, err
			}
			cur.UserBins = append(cur.UserBins, UserBinRecord{
				StartTechnicalBin: start,
				SplitCount:        uint64(len(bins)),
				UserBinID:         userBinID,
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if top == nil {
		return nil, errors.New("layout: missing #TOP_LEVEL_IBF section")
	}

	// Populate MaxBins from the Children map recorded while parsing.
	var fill func(lay *Layout)
	fill = func(lay *Layout) {
		for bin, child := range lay.Children {
			lay.MaxBins = append(lay.MaxBins, MaxBinRecord{TechnicalBin: bin, FullestBin: child.FullestBin})
			fill(child)
		}
	}
	fill(top)
	return top, nil
}

func parseFullest(line string) uint64 {
	const marker = "fullest_technical_bin_idx:"
	i := strings.Index(line, marker)
	if i < 0 {
		return 0
	}
	v, _ := strconv.ParseUint(strings.TrimSpace(line[i+len(marker):]), 10, 64)
	return v
}
