package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ConfabulousDev/confab-insights/internal/insights"
	"github.com/ConfabulousDev/confab-insights/internal/logger"
	"github.com/ConfabulousDev/confab-insights/internal/transcript"
)

var (
	inspectSel      selectionFlags
	inspectMaxChars int
	inspectPayload  bool
	inspectJSON     bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Preview the payload an export would produce",
	Long: `Reconstructs the selected conversation from a local export and prints
what would be sent to the model. Nothing is uploaded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := inspectSel.selection(cmd)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read export: %w", err)
		}

		ctx := logger.WithLogger(cmd.Context(), cliLogger(cmd.ErrOrStderr()))
		preview, err := runInspect(ctx, data, sel, inspectMaxChars)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case inspectJSON:
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(preview)
		case inspectPayload:
			fmt.Fprintln(out, preview.Payload)
			return nil
		default:
			printPreview(out, args[0], int64(len(data)), preview)
			return nil
		}
	},
}

func runInspect(ctx context.Context, data []byte, sel transcript.Selection, maxChars int) (*insights.Preview, error) {
	if maxChars < 0 {
		return nil, fmt.Errorf("--max-chars must not be negative")
	}
	svc := insights.NewService(nil, nil, insights.Config{MaxPayloadChars: maxChars})
	return svc.Preview(ctx, data, sel)
}

func printPreview(w io.Writer, path string, size int64, p *insights.Preview) {
	fmt.Fprintf(w, "File:          %s (%s)\n", path, humanize.Bytes(uint64(size)))
	if p.Member != "" {
		fmt.Fprintf(w, "Member:        %s\n", p.Member)
	}
	fmt.Fprintf(w, "Conversation:  %d of %d\n", p.ConversationIndex+1, p.ConversationCount)
	if p.ConversationTitle != "" {
		fmt.Fprintf(w, "Title:         %s\n", p.ConversationTitle)
	}
	if p.ConversationID != "" {
		fmt.Fprintf(w, "ID:            %s\n", p.ConversationID)
	}
	fmt.Fprintf(w, "Payload:       %s chars, %d lines", humanize.Comma(int64(p.PayloadChars)), p.Lines)
	if p.Truncated {
		fmt.Fprintf(w, " (truncated, %d lines left out)", p.SkippedLines)
	}
	fmt.Fprintln(w)

	if len(p.Warnings) == 0 {
		fmt.Fprintln(w, "Tree:          no structural defects")
		return
	}
	counts := transcript.CountWarnings(p.Warnings)
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	fmt.Fprintf(w, "Tree:          %d structural defects recovered\n", len(p.Warnings))
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %-22s %d\n", kind, counts[transcript.WarningKind(kind)])
	}
}

func init() {
	inspectSel.register(inspectCmd)
	inspectCmd.Flags().IntVar(&inspectMaxChars, "max-chars", 0, "payload budget in characters (default: server default)")
	inspectCmd.Flags().BoolVar(&inspectPayload, "payload", false, "print only the linearized payload")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print the preview as JSON")
	rootCmd.AddCommand(inspectCmd)
}
