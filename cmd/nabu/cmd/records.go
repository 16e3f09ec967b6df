package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nabu-speech/nabu-ctl/internal/tfrecord"
)

var (
	recordsStyle string
	recordsSpec  string
	recordsLimit int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Work with the record files data preparation writes",
}

var recordsInspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Decode a record file and summarise its arrays",
	Long: `Reads every record of a file written in one of the writer styles, checks
the record checksums and prints the number of arrays and their shapes.

The style comes from --style, or from the writer_style of the spec named with
--spec. Available styles: ` + strings.Join(tfrecord.Styles(), ", ") + `.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		styleName, err := recordsStyleName()
		if err != nil {
			return err
		}
		style, err := tfrecord.Lookup(styleName)
		if err != nil {
			return err
		}

		arrays, err := tfrecord.ReadFile(args[0], style)
		if err != nil {
			return err
		}

		shapes := make(map[string]int)
		var values int
		for i, a := range arrays {
			values += a.Size()
			shapes[fmt.Sprint(a.Shape)]++
			if recordsLimit < 0 || i < recordsLimit {
				detail("record %d: shape %v", i, a.Shape)
			}
		}

		info("%s", args[0])
		info("  style:   %s", style.Name())
		info("  records: %d", len(arrays))
		info("  values:  %d", values)
		if len(shapes) > 0 {
			keys := make([]string, 0, len(shapes))
			for k := range shapes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			info("  shapes:")
			for _, k := range keys {
				info("    %-16s %d", k, shapes[k])
			}
		}
		return nil
	},
}

func recordsStyleName() (string, error) {
	if recordsStyle != "" {
		return recordsStyle, nil
	}
	if recordsSpec == "" {
		return "", fmt.Errorf("one of --style or --spec is required")
	}

	s, _, err := loadSettings()
	if err != nil {
		return "", err
	}
	cfg, err := loadDataConfig(s)
	if err != nil {
		return "", err
	}
	spec, ok := cfg.Lookup(recordsSpec)
	if !ok {
		return "", fmt.Errorf("unknown spec '%s' — known specs: %s", recordsSpec, strings.Join(cfg.Names(), ", "))
	}
	if !spec.Preprocess || spec.WriterStyle == "" {
		return "", fmt.Errorf("spec '%s' is not preprocessed and has no writer style", recordsSpec)
	}
	return spec.WriterStyle, nil
}

func init() {
	f := recordsInspectCmd.Flags()
	f.StringVar(&recordsStyle, "style", "", "writer style the file was written with")
	f.StringVar(&recordsSpec, "spec", "", "take the writer style from this spec of the data configuration")
	f.IntVar(&recordsLimit, "limit", 10, "records to list with --verbose (-1 for all)")

	recordsCmd.AddCommand(recordsInspectCmd)
	rootCmd.AddCommand(recordsCmd)
}
