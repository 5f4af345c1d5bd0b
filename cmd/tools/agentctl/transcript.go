package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	transcriptService "github.com/zhouzirui/os1/backend/internal/service/transcript"
)

type transcriptOptions struct {
	server string
	format string
	clear  bool
}

func newTranscriptCmd() *cobra.Command {
	opts := &transcriptOptions{}

	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Export or clear the transcript of a running console backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := transcriptService.ParseFormat(opts.format)
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 10 * time.Second}
			base := strings.TrimRight(opts.server, "/")

			if opts.clear {
				req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete, base+"/api/transcript", nil)
				if err != nil {
					return err
				}
				resp, err := client.Do(req)
				if err != nil {
					return fmt.Errorf("clear transcript: %w", err)
				}
				resp.Body.Close()
				if resp.StatusCode != http.StatusNoContent {
					return fmt.Errorf("clear transcript: unexpected status %s", resp.Status)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Transcript cleared")
				return nil
			}

			q := url.Values{"format": {string(format)}}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, base+"/api/transcript?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("fetch transcript: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("fetch transcript: unexpected status %s", resp.Status)
			}
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "Console backend base URL")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: json, yaml or text")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "Clear the transcript instead of exporting it")
	return cmd
}
