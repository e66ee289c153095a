package gridshift

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pspoerri/reproject/internal/coord"
)

// Options controls how Apply reacts to points it cannot shift cleanly.
type Options struct {
	// StrictCoverage turns a point outside every grid into an error. When
	// false the point is left unshifted and a warning is recorded.
	StrictCoverage bool
	// StrictConvergence turns a non-converging inverse shift into an
	// error. When false the last estimate is kept and a warning recorded.
	StrictConvergence bool
	// Logger receives warnings. Nil means logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// DefaultOptions fails on missing coverage and warns on non-convergence.
func DefaultOptions() Options {
	return Options{StrictCoverage: true}
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// maxLoggedWarnings caps the per-call warning log lines; the Report still
// holds every warning.
const maxLoggedWarnings = 20

// Apply resolves the named grids through the store and shifts the points
// [start, start+n) of xy, which hold longitude/latitude in radians. With
// inverse set the shift is undone.
func (s *Store) Apply(names []string, inverse bool, xy []float64, start, n int, opts Options) (*Report, error) {
	tables, err := s.Resolve(names)
	if err != nil {
		return nil, err
	}
	return ApplyTables(tables, names, inverse, xy, start, n, opts)
}

// ApplyTables shifts points with the given top-level tables, tried in
// order. names is only used in errors and log fields.
func ApplyTables(tables []*Table, names []string, inverse bool, xy []float64, start, n int, opts Options) (*Report, error) {
	report := &Report{}
	log := opts.logger()
	logged := 0
	warn := func(kind WarningKind, index int, err error, p coord.PhiLam) {
		report.add(kind, index, err)
		if logged < maxLoggedWarnings {
			log.WithFields(logrus.Fields{
				"index": index,
				"lon":   p.Lambda * 180 / math.Pi,
				"lat":   p.Phi * 180 / math.Pi,
				"grids": names,
				"kind":  kind.String(),
			}).Warn("grid shift")
		}
		logged++
	}

	for i := start; i < start+n; i++ {
		if coord.IsUndefined(xy, i) {
			continue
		}
		p := coord.PhiLam{Lambda: xy[2*i], Phi: xy[2*i+1]}

		found := false
		for _, top := range tables {
			t := top.Find(p)
			if t == nil {
				continue
			}
			if !inverse {
				out, ok := t.Shift(p)
				if !ok {
					continue
				}
				xy[2*i], xy[2*i+1] = out.Lambda, out.Phi
				found = true
				break
			}

			out, converged, residual, ok := t.Unshift(p)
			if !ok {
				continue
			}
			if !converged {
				cerr := &ConvergenceError{Index: i, Lambda: p.Lambda, Phi: p.Phi, Grid: t.Name, Residual: residual}
				if opts.StrictConvergence {
					return report, cerr
				}
				warn(WarnNotConverged, i, cerr, p)
			}
			xy[2*i], xy[2*i+1] = out.Lambda, out.Phi
			found = true
			break
		}

		if !found {
			cerr := &CoverageError{Index: i, Lambda: p.Lambda, Phi: p.Phi, Grids: names}
			if opts.StrictCoverage {
				return report, cerr
			}
			warn(WarnMissingCoverage, i, cerr, p)
		}
	}

	if logged > maxLoggedWarnings {
		log.WithField("suppressed", logged-maxLoggedWarnings).Warn("further grid shift warnings not logged")
	}
	return report, nil
}
