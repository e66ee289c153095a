package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pspoerri/reproject/internal/coord"
)

func (a *app) listCmd() *cobra.Command {
	var builtin bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the known coordinate systems",
		Long: `list prints the coordinate systems loaded from descriptor files and,
with --builtin, the EPSG codes available without any file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tEPSG\tKIND\tDATUM")
			for _, name := range a.registry.Names() {
				p, err := a.registry.Lookup(name)
				if err != nil {
					return err
				}
				writeCRS(w, p)
			}
			if builtin {
				for _, code := range coord.BuiltinEPSG() {
					p, err := coord.ForEPSG(code)
					if err != nil {
						return err
					}
					writeCRS(w, p)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&builtin, "builtin", true, "include built-in EPSG codes")
	return cmd
}

func writeCRS(w io.Writer, p *coord.ProjectionInfo) {
	kind := "projected"
	switch {
	case p.IsLatLon:
		kind = "geographic"
	case p.IsGeocentric:
		kind = "geocentric"
	case p.Transform != nil:
		kind = p.Transform.Name()
	}
	epsg := "-"
	if p.EPSG != 0 {
		epsg = fmt.Sprint(p.EPSG)
	}
	d := p.Datum()
	fmt.Fprintf(w, "%s\t%s\t%s\t%s (%s)\n", p.Name, epsg, kind, d.Name, d.Type)
}
