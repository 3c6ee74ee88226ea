package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// Filter represents a notification filter response
type Filter struct {
	ID              string     `json:"id"`
	InstanceID      string     `json:"instanceId,omitempty"`
	ApplicationName string     `json:"applicationName,omitempty"`
	Expired         bool       `json:"expired"`
	Expiry          *time.Time `json:"expiry,omitempty"`
}

var filterCmd = &cobra.Command{
	Use:     "filter",
	Aliases: []string{"filters"},
	Short:   "Manage notification filters",
	Long: `Commands for managing notification filters. A filter suppresses
notifications for one instance or for all instances of an application,
optionally until it expires. All filter commands require the admin token.`,
}

var filterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notification filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Request("GET", "/notifications/filters", nil)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(out, data)
		}

		var filters []Filter
		if err := json.Unmarshal(data, &filters); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(filters) == 0 {
			fmt.Fprintln(out, "No notification filters found.")
			return nil
		}

		headers := []string{"ID", "TARGET", "EXPIRES", "EXPIRED"}
		rows := make([][]string, len(filters))
		for i, f := range filters {
			rows[i] = []string{f.ID, f.target(), f.expires(), yesNo(f.Expired)}
		}
		printTable(out, headers, rows)
		return nil
	},
}

var (
	filterAddInstanceID string
	filterAddName       string
	filterAddTTL        time.Duration
)

var filterAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a notification filter",
	Long: `Add a notification filter for an instance (--instance-id) or an
application (--name). Without --ttl the filter never expires.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (filterAddInstanceID == "") == (filterAddName == "") {
			return fmt.Errorf("exactly one of --instance-id or --name is required")
		}
		if filterAddTTL < 0 {
			return fmt.Errorf("--ttl must not be negative")
		}

		query := url.Values{}
		if filterAddInstanceID != "" {
			query.Set("instanceId", filterAddInstanceID)
		} else {
			query.Set("name", filterAddName)
		}
		if filterAddTTL > 0 {
			query.Set("ttl", strconv.FormatInt(filterAddTTL.Milliseconds(), 10))
		}

		client := NewClient(adminURL, adminToken)
		data, err := client.Request("POST", "/notifications/filters?"+query.Encode(), nil)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(out, data)
		}

		var f Filter
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		fmt.Fprintf(out, "Notification filter '%s' added for %s.\n", f.ID, f.target())
		return nil
	},
}

var filterRemoveCmd = &cobra.Command{
	Use:     "remove [filter-id]",
	Aliases: []string{"delete"},
	Short:   "Remove a notification filter",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		if _, err := client.Request("DELETE", "/notifications/filters/"+url.PathEscape(args[0]), nil); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Notification filter '%s' removed.\n", args[0])
		return nil
	},
}

func (f Filter) target() string {
	if f.InstanceID != "" {
		return "instance " + f.InstanceID
	}
	return "application " + f.ApplicationName
}

func (f Filter) expires() string {
	if f.Expiry == nil {
		return "never"
	}
	return formatTime(*f.Expiry)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(filterCmd)
	filterCmd.AddCommand(filterListCmd)
	filterCmd.AddCommand(filterAddCmd)
	filterCmd.AddCommand(filterRemoveCmd)

	filterAddCmd.Flags().StringVar(&filterAddInstanceID, "instance-id", "", "Suppress notifications for this instance")
	filterAddCmd.Flags().StringVar(&filterAddName, "name", "", "Suppress notifications for this application")
	filterAddCmd.Flags().DurationVar(&filterAddTTL, "ttl", 0, "Time until the filter expires, e.g. 5m")
}
