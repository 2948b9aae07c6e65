package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ConfabulousDev/confab-insights/internal/insights"
)

var (
	uploadNoCompress bool
	uploadJSON       bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a conversation export",
	Long: `Uploads a JSON, ZIP or PDF export and prints the storage key.
The content type is detected from the file contents.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read export: %w", err)
		}
		result, err := newClient().Upload(cmd.Context(), data, filepath.Base(args[0]), !uploadNoCompress)
		if err != nil {
			return err
		}
		return printUpload(cmd.OutOrStdout(), result, uploadJSON)
	},
}

func printUpload(w io.Writer, result *insights.UploadResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(w, "Uploaded %s (%s, %s)\n", result.Filename, result.ContentType, humanize.Bytes(uint64(result.Size)))
	fmt.Fprintf(w, "Key: %s\n", result.Key)
	return nil
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadNoCompress, "no-compress", false, "send the body without zstd compression")
	uploadCmd.Flags().BoolVar(&uploadJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(uploadCmd)
}
