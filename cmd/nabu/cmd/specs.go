package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nabu-speech/nabu-ctl/internal/dataconf"
)

var specsOutput string

var specsCmd = &cobra.Command{
	Use:   "specs [name...]",
	Short: "List the resolved data specs in dependency order",
	Long: `Prints the specs of the data configuration after overlays and globalvars
references are resolved, each after the spec it depends on. Naming specs
limits the listing to them and their dependencies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := loadSettings()
		if err != nil {
			return err
		}
		cfg, err := loadDataConfig(s)
		if err != nil {
			return err
		}

		var specs []dataconf.Spec
		if len(args) > 0 {
			specs, err = dataconf.Select(cfg, args)
		} else {
			specs, err = dataconf.Order(cfg)
		}
		if err != nil {
			return err
		}

		switch specsOutput {
		case "text":
			return printSpecsText(cfg, specs)
		case "yaml":
			enc := yaml.NewEncoder(stdout)
			enc.SetIndent(2)
			if err := enc.Encode(specs); err != nil {
				return err
			}
			return enc.Close()
		case "json":
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(specs)
		default:
			return fmt.Errorf("invalid output format '%s' — must be one of: text, yaml, json", specsOutput)
		}
	},
}

func printSpecsText(cfg *dataconf.Config, specs []dataconf.Spec) error {
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDATAFILES\tPREPROCESS\tSEGMENTS\tDEPENDS ON\tUSED BY")
	for _, sp := range specs {
		pre := "-"
		if sp.Preprocess {
			pre = sp.WriterStyle
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", sp.Name, sp.DataFiles, pre,
			orDash(strings.Join(sp.SegmentLengths, " ")),
			orDash(sp.Dependency),
			orDash(strings.Join(cfg.Dependents(sp.Name), ",")))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	specsCmd.Flags().StringVarP(&specsOutput, "output", "o", "text", "output format: text, yaml, json")
	rootCmd.AddCommand(specsCmd)
}
