package cmd

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/feasp/internal/demo"
	"github.com/conneroisu/feasp/pkg/feasp"
)

var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Render a template to stdout",
	Long: `Render a template from the template directory with JSON data.

Examples:
  feasp render for_list.html --data '{"names":["a","b"]}'
  feasp render page.html --root ./site --data @data.json`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderFlags *StandardFlags
	renderData  string
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderFlags = AddStandardFlags(renderCmd, "root")
	renderCmd.Flags().StringVarP(&renderData, "data", "d", "", "Template data as JSON, or @file.json")
}

func runRender(cmd *cobra.Command, args []string) error {
	if err := validateTemplateName(args[0]); err != nil {
		return fmt.Errorf("invalid template name %q: %w", args[0], err)
	}
	data, err := ParseData(renderData)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if renderFlags.Root != "" {
		cfg.App.Root = renderFlags.Root
	}

	app := feasp.New(demo.Assets(cfg.App.Root),
		feasp.WithTemplateDir(cfg.App.TemplateDir),
		feasp.WithStaticDir(cfg.App.StaticDir),
	)
	out, err := app.RenderTemplate(args[0], data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

// validateTemplateName rejects names that could leave the template
// directory.
func validateTemplateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	if strings.ContainsAny(name, "\\\x00") {
		return fmt.Errorf("contains a backslash or NUL")
	}
	if path.IsAbs(name) {
		return fmt.Errorf("absolute path not allowed")
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return fmt.Errorf("path traversal attempt detected")
		}
	}
	return nil
}
