package main

import (
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

func decideCmd() *cobra.Command {
	var amount float64

	cmd := &cobra.Command{
		Use:   "decide <approval-id> <approve|reject>",
		Short: "Record a decision for a pending approval via the running gateway",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			decision := strings.ToLower(strings.TrimSpace(args[1]))
			if decision != "approve" && decision != "reject" {
				return fmt.Errorf("decision must be approve or reject, got %q", args[1])
			}

			q := url.Values{}
			q.Set("id", id)
			q.Set("decision", decision)
			if cmd.Flags().Changed("amount") {
				q.Set("amount", fmt.Sprintf("%g", amount))
			}

			endpoint := strings.TrimRight(viper.GetString("server.base_url"), "/") + "/api/decision?" + q.Encode()
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
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gateway returned %s", resp.Status)
			}

			label := clifmt.Approved("approved")
			if decision == "reject" {
				label = clifmt.Rejected("rejected")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", clifmt.Headerf("decision recorded:"), clifmt.Key(id), label)
			return nil
		},
	}

	cmd.Flags().Float64Var(&amount, "amount", 0, "amount to attach to the decision")
	return cmd
}
