package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-service-admin/internal/domain"
)

var instanceCmd = &cobra.Command{
	Use:     "instance",
	Aliases: []string{"instances"},
	Short:   "Inspect registered instances",
	Long:    `Commands for inspecting and deregistering the instances known to the admin server.`,
}

var instanceListName string

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered instances",
	Long:  `List the registered instances, optionally only those of one application.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/instances"
		if instanceListName != "" {
			path += "?name=" + url.QueryEscape(instanceListName)
		}

		client := NewClient(adminURL, adminToken)
		data, err := client.Request("GET", path, nil)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(out, data)
		}

		var instances []domain.Instance
		if err := json.Unmarshal(data, &instances); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(instances) == 0 {
			fmt.Fprintln(out, "No instances found.")
			return nil
		}

		headers := []string{"ID", "NAME", "STATUS", "SINCE", "HEALTH URL"}
		rows := make([][]string, len(instances))
		for i, inst := range instances {
			rows[i] = []string{
				string(inst.ID),
				inst.Registration.Name,
				string(inst.StatusInfo.Status),
				formatTime(inst.StatusTimestamp),
				inst.Registration.HealthURL,
			}
		}
		printTable(out, headers, rows)
		return nil
	},
}

var instanceGetCmd = &cobra.Command{
	Use:   "get [instance-id]",
	Short: "Get a registered instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		data, err := client.Request("GET", "/instances/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), data)
	},
}

var instanceDeregisterCmd = &cobra.Command{
	Use:   "deregister [instance-id]",
	Short: "Deregister an instance",
	Long: `Deregister an instance. The instance stays in the event log but is no
longer monitored. A running instance with auto registration enabled will
register itself again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient(adminURL, adminToken)
		if _, err := client.Request("DELETE", "/instances/"+url.PathEscape(args[0]), nil); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Instance '%s' deregistered.\n", args[0])
		return nil
	},
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func init() {
	rootCmd.AddCommand(instanceCmd)
	instanceCmd.AddCommand(instanceListCmd)
	instanceCmd.AddCommand(instanceGetCmd)
	instanceCmd.AddCommand(instanceDeregisterCmd)

	instanceListCmd.Flags().StringVar(&instanceListName, "name", "", "Only list instances of this application")
}
