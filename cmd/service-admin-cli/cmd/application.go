package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
)

var applicationCmd = &cobra.Command{
	Use:     "application",
	Aliases: []string{"applications", "app"},
	Short:   "Inspect applications",
	Long:    `Commands for the applications formed by grouping registered instances by name.`,
}

var applicationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List applications",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Request("GET", "/applications", nil)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(out, data)
		}

		var apps []domain.Application
		if err := json.Unmarshal(data, &apps); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(apps) == 0 {
			fmt.Fprintln(out, "No applications found.")
			return nil
		}

		headers := []string{"NAME", "STATUS", "INSTANCES", "SINCE"}
		rows := make([][]string, len(apps))
		for i, app := range apps {
			rows[i] = []string{app.Name, string(app.Status), strconv.Itoa(len(app.Instances)), formatTime(app.StatusTimestamp)}
		}
		printTable(out, headers, rows)
		return nil
	},
}

var applicationGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Get an application and its instances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Request("GET", "/applications/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), data)
	},
}

var applicationDeregisterCmd = &cobra.Command{
	Use:   "deregister [name]",
	Short: "Deregister every instance of an application",
	Long:  `Deregister every instance of an application. Requires the admin token.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		if _, err := client.Request("DELETE", "/applications/"+url.PathEscape(args[0]), nil); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Application '%s' deregistered.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(applicationCmd)
	applicationCmd.AddCommand(applicationListCmd)
	applicationCmd.AddCommand(applicationGetCmd)
	applicationCmd.AddCommand(applicationDeregisterCmd)
}
