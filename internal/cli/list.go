package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored uploads, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		exports, err := newClient().ListExports(cmd.Context())
		if err != nil {
			return err
		}
		return printExports(cmd.OutOrStdout(), exports, listJSON)
	},
}

func printExports(w io.Writer, exports []ExportInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(exports)
	}
	if len(exports) == 0 {
		fmt.Fprintln(w, "No uploads yet.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tUPLOADED")
	for _, e := range exports {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, humanize.Bytes(uint64(e.Size)), humanize.Time(e.LastModified))
	}
	return tw.Flush()
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print the listing as JSON")
	rootCmd.AddCommand(listCmd)
}
