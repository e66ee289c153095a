package main

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/pspoerri/reproject/internal/gridshift"
)

const radToDeg = 180 / math.Pi

func (a *app) gridInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gridinfo FILE...",
		Short: "Describe grid-shift files",
		Long: `gridinfo prints the format, extent, cell size and node count of every
table in the given grid files, with nested sub-grids indented below their
parent. Names that are not paths are looked up in the grid search path.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.store()
			for _, name := range args {
				tables, format, err := a.readGrid(store, name)
				if err != nil {
					return err
				}
				describeGrid(cmd.OutOrStdout(), name, format, tables)
			}
			return nil
		},
	}
}

// readGrid reads a grid file directly when it exists, and through the
// store's search path otherwise.
func (a *app) readGrid(store *gridshift.Store, name string) ([]*gridshift.Table, string, error) {
	if ok, _ := afero.Exists(a.fs, name); !ok {
		tables, err := store.Get(name)
		if err != nil {
			return nil, "", err
		}
		format := ""
		if len(tables) > 0 {
			format = tables[0].Format
		}
		return tables, format, nil
	}
	f, err := a.fs.Open(name)
	if err != nil {
		return nil, "", errors.Wrap(err, "opening grid")
	}
	defer f.Close()
	tables, format, err := gridshift.Read(f, filepath.Base(name))
	if err != nil {
		return nil, "", errors.Wrapf(err, "reading %s", name)
	}
	a.log.WithFields(logrus.Fields{"grid": name, "format": format, "tables": len(tables)}).Debug("Read grid")
	return tables, format, nil
}

func describeGrid(w io.Writer, name, format string, tables []*gridshift.Table) {
	fmt.Fprintf(w, "%s (%s)\n", name, format)
	for _, top := range tables {
		top.Walk(func(t *gridshift.Table, depth int) {
			indent := strings.Repeat("  ", depth+1)
			ur := t.UpperRight()
			fmt.Fprintf(w, "%s%s: %dx%d nodes\n", indent, t.Name, t.NumLambdas, t.NumPhis)
			fmt.Fprintf(w, "%s  lon [%.6f, %.6f]  lat [%.6f, %.6f]\n", indent,
				t.LowerLeft.Lambda*radToDeg, ur.Lambda*radToDeg, t.LowerLeft.Phi*radToDeg, ur.Phi*radToDeg)
			fmt.Fprintf(w, "%s  cell %.3f\" x %.3f\"\n", indent,
				t.CellSize.Lambda*radToDeg*3600, t.CellSize.Phi*radToDeg*3600)
		})
	}
}

func (a *app) convertCmd() *cobra.Command {
	var sub string
	cmd := &cobra.Command{
		Use:   "convert IN OUT.ct2",
		Short: "Convert one table of a grid file to CTable2",
		Long: `convert writes a single table of any supported grid file as CTable2. By
default the first top-level table is written; --table selects another one by
name, including nested sub-grids.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, _, err := a.readGrid(a.store(), args[0])
			if err != nil {
				return err
			}
			t, err := pickTable(tables, sub)
			if err != nil {
				return errors.Wrap(err, args[0])
			}
			out, err := a.fs.Create(args[1])
			if err != nil {
				return errors.Wrap(err, "creating output")
			}
			if err := gridshift.WriteCTable2(out, t); err != nil {
				out.Close()
				return errors.Wrapf(err, "writing %s", args[1])
			}
			if err := out.Close(); err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{
				"table": t.Name,
				"nodes": t.NumLambdas * t.NumPhis,
				"out":   args[1],
			}).Info("Wrote CTable2")
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "table", "", "name of the table to convert")
	return cmd
}

func pickTable(tables []*gridshift.Table, name string) (*gridshift.Table, error) {
	if len(tables) == 0 {
		return nil, errors.New("no tables")
	}
	if name == "" {
		return tables[0], nil
	}
	var found *gridshift.Table
	for _, top := range tables {
		top.Walk(func(t *gridshift.Table, _ int) {
			if found == nil && strings.EqualFold(strings.TrimSpace(t.Name), name) {
				found = t
			}
		})
	}
	if found == nil {
		return nil, errors.Errorf("no table named %q", name)
	}
	return found, nil
}
