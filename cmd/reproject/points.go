package main

import (
	"bufio"
	"io"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pspoerri/reproject/internal/config"
	"github.com/pspoerri/reproject/internal/gridshift"
	"github.com/pspoerri/reproject/internal/reproject"
)

func (a *app) pointsCmd() *cobra.Command {
	var (
		from, to  string
		in, out   string
		precision int
		progress  bool
	)
	cmd := &cobra.Command{
		Use:   "points --from CRS --to CRS",
		Short: "Reproject whitespace-separated points",
		Long: `points reads lines of "x y" or "x y z" and writes them reprojected, in the
same layout. Geographic coordinates are longitude first. Points without a
representation in the target system are written as "inf inf". Empty lines
and lines starting with # are copied through.

CRS references are EPSG codes ("EPSG:2056" or "2056") or names from the
descriptor files given with --crs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := a.registry.Lookup(from)
			if err != nil {
				return errors.Wrap(err, "--from")
			}
			dst, err := a.registry.Lookup(to)
			if err != nil {
				return errors.Wrap(err, "--to")
			}

			r, err := a.openInput(cmd, in)
			if err != nil {
				return err
			}
			defer r.Close()
			pts, err := parsePoints(r)
			if err != nil {
				return err
			}
			if src.IsGeocentric || dst.IsGeocentric {
				pts.ensureZ()
			}

			start := time.Now()
			var done reproject.BatchFunc
			var bar *progressBar
			if progress {
				bar = newProgressBar(cmd.ErrOrStderr(), "reprojecting", int64(pts.count()))
				done = func(n int) { bar.Add(int64(n)) }
			}
			report, err := reproject.ReprojectBatches(cmd.Context(), a.engine(), pts.xy, pts.z, src, dst,
				a.settings.BatchSize, a.settings.Workers, done)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return errors.Wrapf(err, "reprojecting %s -> %s", src, dst)
			}
			a.logReport(report, pts.count(), time.Since(start))

			w, err := a.openOutput(cmd, out)
			if err != nil {
				return err
			}
			if err := pts.write(w, precision); err != nil {
				w.Close()
				return err
			}
			return w.Close()
		},
	}

	f := cmd.Flags()
	f.StringVar(&from, "from", "", "source coordinate system")
	f.StringVar(&to, "to", "", "target coordinate system")
	f.StringVar(&in, "in", "-", "input file, - for stdin")
	f.StringVar(&out, "out", "-", "output file, - for stdout")
	f.IntVar(&precision, "precision", -1, "decimals in the output, -1 for the shortest exact form")
	f.BoolVar(&progress, "progress", false, "show a progress bar on stderr")
	f.Bool("strict-coverage", true, "fail on points outside every grid instead of leaving them unshifted")
	f.Bool("strict-convergence", false, "fail when an inverse grid shift does not converge")
	f.Int("workers", runtime.NumCPU(), "parallel workers")
	f.Int("batch-size", reproject.DefaultBatchSize, "points per batch")
	a.bind(f, config.KeyStrictCoverage, "strict-coverage")
	a.bind(f, config.KeyStrictConvergence, "strict-convergence")
	a.bind(f, config.KeyWorkers, "workers")
	a.bind(f, config.KeyBatchSize, "batch-size")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func (a *app) logReport(report *gridshift.Report, n int, elapsed time.Duration) {
	fields := logrus.Fields{
		"points":  n,
		"elapsed": elapsed.Round(time.Millisecond).String(),
	}
	if report.Empty() {
		a.log.WithFields(fields).Info("Reprojection done")
		return
	}
	fields["missing_coverage"] = report.Count(gridshift.WarnMissingCoverage)
	fields["not_converged"] = report.Count(gridshift.WarnNotConverged)
	a.log.WithFields(fields).Warn("Reprojection done with warnings")
}

// pointSet is the parsed input. Lines that are not points are kept so the
// output mirrors the input.
type pointSet struct {
	xy    []float64
	z     []float64
	hasZ  []bool
	allZ  bool
	lines []inputLine
}

type inputLine struct {
	text  string // verbatim for comments and blanks
	point int    // -1 for non-point lines
}

func (p *pointSet) count() int { return len(p.xy) / 2 }

// ensureZ gives every point a height, written back on output.
func (p *pointSet) ensureZ() {
	if p.z == nil {
		p.z = make([]float64, p.count())
	}
	p.allZ = true
}

func parsePoints(r io.Reader) (*pointSet, error) {
	p := &pointSet{}
	var zs []float64
	anyZ := false
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			p.lines = append(p.lines, inputLine{text: line, point: -1})
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) != 2 && len(fields) != 3 {
			return nil, errors.Errorf("line %d: want 2 or 3 values, got %d", lineNo, len(fields))
		}
		var vals [3]float64
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo)
			}
			vals[i] = v
		}
		p.lines = append(p.lines, inputLine{point: p.count()})
		p.xy = append(p.xy, vals[0], vals[1])
		zs = append(zs, vals[2])
		p.hasZ = append(p.hasZ, len(fields) == 3)
		anyZ = anyZ || len(fields) == 3
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading points")
	}
	if anyZ {
		p.z = zs
	}
	return p, nil
}

func (p *pointSet) write(w io.Writer, precision int) error {
	bw := bufio.NewWriter(w)
	for _, l := range p.lines {
		if l.point < 0 {
			bw.WriteString(l.text)
			bw.WriteByte('\n')
			continue
		}
		i := l.point
		bw.WriteString(formatCoord(p.xy[2*i], precision))
		bw.WriteByte(' ')
		bw.WriteString(formatCoord(p.xy[2*i+1], precision))
		if p.z != nil && (p.hasZ[i] || p.allZ) {
			bw.WriteByte(' ')
			bw.WriteString(formatCoord(p.z[i], precision))
		}
		bw.WriteByte('\n')
	}
	return errors.Wrap(bw.Flush(), "writing points")
}

func formatCoord(v float64, precision int) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (a *app) openInput(cmd *cobra.Command, name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := a.fs.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "opening input")
	}
	return f, nil
}

func (a *app) openOutput(cmd *cobra.Command, name string) (io.WriteCloser, error) {
	if name == "-" {
		return nopCloser{cmd.OutOrStdout()}, nil
	}
	f, err := a.fs.Create(name)
	if err != nil {
		return nil, errors.Wrap(err, "creating output")
	}
	return f, nil
}
