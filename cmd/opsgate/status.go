package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/plaudehq/opsgate/internal/clifmt"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <approval-id>",
		Short: "Show the current status of an approval via the running gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])

			q := url.Values{}
			q.Set("id", id)
			endpoint := strings.TrimRight(viper.GetString("server.base_url"), "/") + "/api/approval-status?" + q.Encode()

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 15 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("reach gateway: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}

			var view struct {
				Status  string   `json:"status"`
				Message string   `json:"message"`
				Amount  *float64 `json:"amount"`
			}
			if err := json.Unmarshal(body, &view); err != nil {
				return fmt.Errorf("decode status response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", clifmt.Key(id), clifmt.StatusLabel(view.Status))
			if view.Amount != nil {
				fmt.Fprintf(out, "%s %g\n", clifmt.Dim("amount:"), *view.Amount)
			}
			if view.Message != "" {
				fmt.Fprintln(out, clifmt.Dim(view.Message))
			}
			return nil
		},
	}
	return cmd
}
