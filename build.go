package hibf

import (
	goerrors "errors"

	"github.com/pkg/errors"

	ibuild "github.com/seqlab/hibf/build"
	"github.com/seqlab/hibf/layout"
)

// Build runs the full construction procedure described in spec §4: it
// validates cfg, collects hashes and cardinality sketches via
// cfg.InputFn, computes the hierarchical layout, and materialises the
// resulting tree of IBFs into a ready-to-query Index. cfg is taken by
// pointer so defaults filled in and warnings recorded by Validate are
// visible to the caller afterward.
func Build(cfg *Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []layout.Option{
		layout.WithFalsePositiveRate(cfg.MaximumFPR),
		layout.WithRelaxedFalsePositiveRate(cfg.RelaxedFPR),
		layout.WithHashCount(cfg.NumberOfHashFunctions),
		layout.WithTmax(cfg.Tmax),
		layout.WithAlpha(cfg.Alpha),
		layout.WithEmptyBinFraction(cfg.EmptyBinFraction),
		layout.WithRearrangementSeed(cfg.RearrangementSeed),
	}
	if cfg.DisableEstimateUnion {
		opts = append(opts, layout.WithDisableEstimateUnion())
	}
	if cfg.DisableRearrangement {
		opts = append(opts, layout.WithDisableRearrangement())
	} else {
		opts = append(opts, layout.WithMaxRearrangementRatio(cfg.MaxRearrangementRatio))
	}

	tree, err := ibuild.Run(ibuild.Params{
		InputFn: func(userBinID uint64, sink ibuild.InsertSink) error {
			return cfg.InputFn(userBinID, sink)
		},
		NumberOfUserBins:      cfg.NumberOfUserBins,
		NumberOfHashFunctions: cfg.NumberOfHashFunctions,
		MaximumFPR:            cfg.MaximumFPR,
		RelaxedFPR:            cfg.RelaxedFPR,
		SketchBits:            cfg.SketchBits,
		Threads:               cfg.Threads,
		LayoutOptions:         opts,
	})
	if err != nil {
		if goerrors.Is(err, ibuild.ErrEmptyUserBin) {
			return nil, errors.Wrap(ErrEmptyUserBin, err.Error())
		}
		return nil, err
	}

	idx := &Index{
		NumberOfUserBins: cfg.NumberOfUserBins,
		ibfs:             tree.IBFs,
		childOf:          tree.ChildOf,
		binToUser:        tree.BinToUser,
		parentOf:         make([]*ParentRef, len(tree.ParentOf)),
	}
	for i, p := range tree.ParentOf {
		if p == nil {
			continue
		}
		idx.parentOf[i] = &ParentRef{IBF: p.IBF, Bin: p.Bin}
	}
	return idx, nil
}
