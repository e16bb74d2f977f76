package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/feasp/internal/demo"
	"github.com/conneroisu/feasp/pkg/feasp"
)

var routesCmd = &cobra.Command{
	Use:     "routes",
	Aliases: []string{"r"},
	Short:   "List the demo application's routes",
	Long: `List every route of the demo application with its endpoint and methods.

Examples:
  feasp routes              # table
  feasp routes -o json      # JSON array
  feasp routes -o yaml      # YAML list`,
	RunE: runRoutes,
}

var routesFlags *StandardFlags

func init() {
	rootCmd.AddCommand(routesCmd)
	routesFlags = AddStandardFlags(routesCmd, "output")
}

func runRoutes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := demo.New(cfg, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	return writeRoutes(cmd.OutOrStdout(), d.App.Routes(), routesFlags.OutputFormat)
}

func writeRoutes(w io.Writer, routes []feasp.RouteInfo, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(routes)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(routes); err != nil {
			return err
		}
		return encoder.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tENDPOINT\tMETHODS")
		for _, r := range routes {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Path, r.Endpoint, strings.Join(r.Methods, ","))
		}
		return tw.Flush()
	default:
		return ValidateChoice("output format", format, outputFormats)
	}
}
