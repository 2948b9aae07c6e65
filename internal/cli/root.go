// Package cli implements insightctl, the command-line client for
// confab-insights.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ConfabulousDev/confab-insights/internal/logger"
)

const defaultServerURL = "http://localhost:8080"

var version = "dev"

var (
	serverURL string
	timeout   time.Duration
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "insightctl",
	Short: "Upload conversation exports and read insights about them",
	Long: `insightctl uploads chat conversation exports (JSON, ZIP or PDF) to a
confab-insights server and prints the insights it generates. The inspect
command previews locally what would be sent to the model.`,
	SilenceUsage: true,
}

// Execute runs the root command. It is called by main.main().
func Execute(v string) {
	if v != "" {
		version = v
	}
	// A missing .env is fine; the environment wins over the file.
	_ = godotenv.Load(".env")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server URL (default $INSIGHTS_SERVER_URL or "+defaultServerURL+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
}

func resolveServerURL() string {
	if serverURL != "" {
		return serverURL
	}
	if env := os.Getenv("INSIGHTS_SERVER_URL"); env != "" {
		return env
	}
	return defaultServerURL
}

func newClient() *Client {
	return NewClient(resolveServerURL(), timeout)
}

// cliLogger logs as text to w, at debug level when verbose is set and
// otherwise only warnings.
func cliLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	} else if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = logger.ParseLevel(env)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
