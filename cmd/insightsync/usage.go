package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/smallbiznis/insightsync/internal/ratelimit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	usageFile     string
	usageResource string
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Decode provider usage headers",
	Long: `Reads raw "Name: value" response headers from --file (or stdin) and prints
the usage reading and the pause the client would apply.`,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().StringVar(&usageFile, "file", "", "header dump, one header per line (default stdin)")
	usageCmd.Flags().StringVar(&usageResource, "resource", "global", "resource key the reading is stored under")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if usageFile != "" {
		f, err := os.Open(usageFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	headers, err := parseHeaderDump(in)
	if err != nil {
		return err
	}
	monitor := ratelimit.NewUsageMonitor(zap.NewNop(), nil, nil)
	snap := monitor.Parse(headers, usageResource)
	return printJSON(cmd, map[string]any{
		"snapshot":                snap,
		"recommended_concurrency": monitor.RecommendedConcurrency(),
	})
}

// parseHeaderDump reads "Name: value" lines. Blank lines and an optional
// HTTP status line are ignored.
func parseHeaderDump(r io.Reader) (http.Header, error) {
	headers := http.Header{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "HTTP/") {
			continue
		}
		name, value, ok := strings.Cut(text, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("line %d: expected \"Name: value\"", line)
		}
		headers.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return headers, nil
}
