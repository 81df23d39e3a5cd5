package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/storage"
)

// --- workflows ---

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Manage recruiting workflows",
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/api/workflows"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var workflows []storage.Workflow
		if err := decodeJSON(resp, &workflows); err != nil {
			return err
		}

		if len(workflows) == 0 {
			fmt.Println("No workflows found.")
			return nil
		}

		for _, w := range workflows {
			fmt.Printf("%s  %-12s  %s\n", w.ID, w.Status, colorize(colorBold, w.Title))
			if w.Description != "" {
				fmt.Printf("  %s\n", w.Description)
			}
		}
		return nil
	},
}

var workflowsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new workflow",
	Long: `Create a new workflow.

Examples:
  hireloop workflows create --title "Backend engineer hire" --type hiring --created-by alice
  hireloop workflows create --title "Q3 intern batch" --type hiring --created-by bob --generate-steps`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		workflowType, _ := cmd.Flags().GetString("type")
		createdBy, _ := cmd.Flags().GetString("created-by")
		description, _ := cmd.Flags().GetString("description")
		generate, _ := cmd.Flags().GetBool("generate-steps")

		if title == "" || workflowType == "" || createdBy == "" {
			return fmt.Errorf("--title, --type, and --created-by are required")
		}

		req := map[string]any{
			"title":         title,
			"workflow_type": workflowType,
			"created_by":    createdBy,
		}
		if description != "" {
			req["description"] = description
		}
		if generate {
			req["generate_steps"] = true
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/workflows", req)
		if err != nil {
			return err
		}

		var result struct {
			storage.Workflow
			Steps []storage.WorkflowStep `json:"steps"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Created workflow %s", result.ID)
		if len(result.Steps) > 0 {
			fmt.Printf("Generated %d steps:\n", len(result.Steps))
			for _, s := range result.Steps {
				fmt.Printf("  - %s (%s, %s)\n", s.Title, s.AssignedTo, s.Status)
			}
		}
		return nil
	},
}

var workflowsShowCmd = &cobra.Command{
	Use:   "show <workflow-id>",
	Short: "Show a workflow with its steps as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/workflows/"+args[0])
		if err != nil {
			return err
		}

		var detail any
		if err := decodeJSON(resp, &detail); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	},
}

var workflowsSetStatusCmd = &cobra.Command{
	Use:   "set-status <workflow-id> <status>",
	Short: "Set a workflow's status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/api/workflows/"+args[0], map[string]string{
			"status": args[1],
		})
		if err != nil {
			return err
		}

		var updated storage.Workflow
		if err := decodeJSON(resp, &updated); err != nil {
			return err
		}
		printSuccess("Workflow %s is now %s", updated.ID, updated.Status)
		return nil
	},
}

var workflowsDeleteCmd = &cobra.Command{
	Use:   "delete <workflow-id>",
	Short: "Delete a workflow and everything attached to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/workflows/"+args[0])
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Deleted workflow %s", args[0])
		return nil
	},
}

func init() {
	workflowsListCmd.Flags().String("status", "", "filter by workflow status")
	workflowsCreateCmd.Flags().String("title", "", "workflow title")
	workflowsCreateCmd.Flags().String("type", "", "workflow type, e.g. hiring")
	workflowsCreateCmd.Flags().String("created-by", "", "creator identifier")
	workflowsCreateCmd.Flags().String("description", "", "workflow description")
	workflowsCreateCmd.Flags().Bool("generate-steps", false, "generate an initial step plan with the model")

	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsCreateCmd)
	workflowsCmd.AddCommand(workflowsShowCmd)
	workflowsCmd.AddCommand(workflowsSetStatusCmd)
	workflowsCmd.AddCommand(workflowsDeleteCmd)
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <workflow-id> [message...]",
	Short: "Send a chat message inside a workflow",
	Long: `Send a chat message inside a workflow.

With a message on the command line, sends it and prints the assistant reply.
Without one, reads messages from stdin until EOF, one turn per line.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workflowID := args[0]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		send := func(message string) error {
			resp, err := client.post(cmd.Context(), "/api/workflows/"+workflowID+"/messages", map[string]string{
				"message": message,
			})
			if err != nil {
				return err
			}

			var reply struct {
				Message string `json:"message"`
				Actions []struct {
					Type        string `json:"type"`
					Description string `json:"description"`
				} `json:"actions"`
			}
			if err := decodeJSON(resp, &reply); err != nil {
				return err
			}

			fmt.Println(reply.Message)
			for _, a := range reply.Actions {
				fmt.Fprintln(os.Stderr, colorize(colorYellow, "→ "+a.Description))
			}
			return nil
		}

		if len(args) > 1 {
			return send(strings.Join(args[1:], " "))
		}

		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := send(line); err != nil {
				return err
			}
		}
		return scanner.Err()
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hireloop configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration keys and their values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, info := range config.ShowAll(cfg) {
			fmt.Printf("  %-20s %s\n", colorize(colorBold, info.Key), info.Value)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		value, err := config.GetKey(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(config.NewBackend(), args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}
