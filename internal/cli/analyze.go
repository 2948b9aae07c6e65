package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ConfabulousDev/confab-insights/internal/insights"
	"github.com/ConfabulousDev/confab-insights/internal/transcript"
)

// selectionFlags pick a conversation out of an export.
type selectionFlags struct {
	conversation   int
	conversationID string
	branch         string
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.conversation, "conversation", "c", 0, "zero-based conversation index (default: most recently updated)")
	cmd.Flags().StringVar(&f.conversationID, "conversation-id", "", "conversation id or conversation_id")
	cmd.Flags().StringVar(&f.branch, "branch", "all", `"all" for the whole tree or "current" for the current_node path`)
}

// index returns the index flag only when it was given.
func (f *selectionFlags) index(cmd *cobra.Command) *int {
	if !cmd.Flags().Changed("conversation") {
		return nil
	}
	n := f.conversation
	return &n
}

func (f *selectionFlags) selection(cmd *cobra.Command) (transcript.Selection, error) {
	sel := transcript.Selection{Index: f.index(cmd), ID: f.conversationID}
	switch f.branch {
	case "", "all":
	case transcript.BranchCurrent:
		sel.Branch = transcript.BranchCurrent
	default:
		return sel, fmt.Errorf("--branch must be \"all\" or \"current\", got %q", f.branch)
	}
	return sel, nil
}

var (
	analyzeSel        selectionFlags
	analyzeKey        string
	analyzeJSON       bool
	analyzeRaw        bool
	analyzeNoCompress bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Generate insights for an export",
	Long: `Asks the server for insights about one conversation.

With a file argument, JSON exports are sent inline and ZIP exports are
uploaded first. With --key, a stored upload is analyzed. With neither,
the most recent upload is analyzed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := analyzeSel.selection(cmd)
		if err != nil {
			return err
		}
		params := AnalyzeParams{
			Key:            analyzeKey,
			Conversation:   sel.Index,
			ConversationID: sel.ID,
			Branch:         sel.Branch,
		}

		var path string
		if len(args) == 1 {
			path = args[0]
		}
		result, err := runAnalyze(cmd.Context(), newClient(), params, path, !analyzeNoCompress, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		return printInsight(cmd.OutOrStdout(), cmd.ErrOrStderr(), result, analyzeJSON, analyzeRaw)
	},
}

// runAnalyze sends params, first resolving a local file into an inline
// export or an uploaded key.
func runAnalyze(ctx context.Context, client *Client, params AnalyzeParams, path string, compress bool, status io.Writer) (*AnalyzeResult, error) {
	if path != "" {
		if params.Key != "" {
			return nil, fmt.Errorf("--key and a file argument are mutually exclusive")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read export: %w", err)
		}

		if insights.DetectMediaType(data) == insights.MediaTypeJSON {
			if !json.Valid(data) {
				return nil, fmt.Errorf("%s is not valid JSON", path)
			}
			params.Export = data
		} else {
			uploaded, err := client.Upload(ctx, data, filepath.Base(path), compress)
			if err != nil {
				return nil, fmt.Errorf("upload failed: %w", err)
			}
			fmt.Fprintf(status, "Uploaded %s as %s\n", path, uploaded.Key)
			params.Key = uploaded.Key
		}
	}
	return client.Analyze(ctx, params, compress)
}

func printInsight(out, status io.Writer, result *AnalyzeResult, asJSON, raw bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintln(out, renderMarkdown(out, result.Text, raw))

	title := result.ConversationTitle
	if title == "" {
		title = "untitled"
	}
	fmt.Fprintf(status, "Conversation %d of %d: %s\n", result.ConversationIndex+1, result.ConversationCount, title)
	if result.Truncated {
		fmt.Fprintf(status, "Payload truncated to %s characters (%d lines left out)\n",
			humanize.Comma(int64(result.PayloadChars)), result.SkippedLines)
	}
	if n := len(result.Warnings); n > 0 {
		fmt.Fprintf(status, "Recovered %d structural defects in the conversation tree\n", n)
	}
	fmt.Fprintf(status, "Model %s: %s in / %s out tokens, ~$%s, %s\n",
		result.Model,
		humanize.Comma(result.InputTokens),
		humanize.Comma(result.OutputTokens),
		result.EstimatedCost.StringFixed(4),
		humanize.FtoaWithDigits(float64(result.DurationMS)/1000, 1)+"s")
	return nil
}

func init() {
	analyzeSel.register(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzeKey, "key", "k", "", "storage key of an upload")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the insight and its metadata as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeRaw, "raw", false, "print the insight without markdown rendering")
	analyzeCmd.Flags().BoolVar(&analyzeNoCompress, "no-compress", false, "send bodies without zstd compression")
	rootCmd.AddCommand(analyzeCmd)
}
