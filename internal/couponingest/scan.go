// Package couponingest finds the promo codes shared by several partner code
// lists. The lists can hold hundreds of millions of lines, so each one is
// summarized in a bloom filter first and only possible matches are kept in
// memory on the second pass.
package couponingest

import (
	"bufio"
	"context"
	"log/slog"
	"math/bits"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/vendor-kart/internal/dataset"
)

// maxSources is the number of lists a uint64 presence mask can track.
const maxSources = 64

// Options tune a Scan.
type Options struct {
	// Capacity is the expected number of codes per list.
	Capacity uint
	// FalsePositiveRate of each bloom filter.
	FalsePositiveRate float64
	// MinLen and MaxLen bound accepted code lengths; other lines are ignored.
	MinLen int
	MaxLen int
	// MinSources is how many lists must contain a code. Default 2.
	MinSources int
	// ProgressEvery logs progress after this many lines per list. Zero
	// disables progress logs.
	ProgressEvery uint64
	Logger        *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Capacity == 0 {
		o.Capacity = 1_000_000
	}
	if o.FalsePositiveRate <= 0 {
		o.FalsePositiveRate = 0.001
	}
	if o.MinSources < 2 {
		o.MinSources = 2
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
}

func (o *Options) accepts(code string) bool {
	if code == "" {
		return false
	}
	if o.MinLen > 0 && len(code) < o.MinLen {
		return false
	}
	return o.MaxLen <= 0 || len(code) <= o.MaxLen
}

// Scan returns, in lexical order, the codes found in at least
// opts.MinSources of the files at paths.
func Scan(ctx context.Context, paths []string, opts Options) ([]string, error) {
	opts.setDefaults()
	if len(paths) > maxSources {
		return nil, errors.Errorf("at most %d code lists are supported, got %d", maxSources, len(paths))
	}
	if len(paths) < opts.MinSources {
		return nil, nil
	}

	opts.Logger.Info("pass 1: building bloom filters", slog.Int("files", len(paths)))
	filters, err := buildFilters(ctx, paths, &opts)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	opts.Logger.Info("pass 2: collecting shared codes")
	masks, err := collectCandidates(ctx, paths, filters, &opts)
	if err != nil {
		return nil, errors.Wrap(err, "collect candidates")
	}

	var shared []string
	for code, mask := range masks {
		if bits.OnesCount64(mask) >= opts.MinSources {
			shared = append(shared, code)
		}
	}
	slices.Sort(shared)
	return shared, nil
}

func buildFilters(ctx context.Context, paths []string, opts *Options) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.Capacity, opts.FalsePositiveRate)
			n, err := streamCodes(ctx, path, opts, func(code string) {
				filter.AddString(code)
			})
			if err != nil {
				return err
			}
			opts.Logger.Info("pass 1 complete", slog.String("file", path), slog.Uint64("codes", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// collectCandidates keeps each code that some other list's filter may hold,
// tagged with the bit of the list it was read from. Bloom false positives
// only add a bit for lists that really contain the code, so the merged masks
// are exact.
func collectCandidates(ctx context.Context, paths []string, filters []*bloom.BloomFilter, opts *Options) (map[string]uint64, error) {
	results := make([]map[string]uint64, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			bit := uint64(1) << uint(i)
			candidates := make(map[string]uint64)
			_, err := streamCodes(ctx, path, opts, func(code string) {
				for j, f := range filters {
					if j != i && f.TestString(code) {
						candidates[code] |= bit
						return
					}
				}
			})
			if err != nil {
				return err
			}
			opts.Logger.Info("pass 2 complete", slog.String("file", path), slog.Int("candidates", len(candidates)))
			results[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, r := range results {
		for code, mask := range r {
			merged[code] |= mask
		}
	}
	return merged, nil
}

// streamCodes calls fn for every accepted line of path and returns how many
// were accepted.
func streamCodes(ctx context.Context, path string, opts *Options, fn func(code string)) (uint64, error) {
	rc, err := dataset.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	var n uint64
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		code := scanner.Text()
		if !opts.accepts(code) {
			continue
		}
		fn(code)
		n++
		if opts.ProgressEvery > 0 && n%opts.ProgressEvery == 0 {
			opts.Logger.Info("progress", slog.String("file", path), slog.Uint64("codes", n))
		}
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrapf(err, "scan %s", path)
	}
	return n, nil
}
