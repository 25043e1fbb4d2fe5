package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cmnenv "workhub/server/common/env"
	"workhub/server/common/infra/notifyclient"
	"workhub/server/notify/app"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Create a notification through a running notifyd",
	Long: "Posts to the internal dispatch route so the notification is pushed by the instance\n" +
		"that holds the recipient's connection. Endpoints default to NOTIFY_ENDPOINTS.",
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringSlice("endpoint", nil, "notifyd base url, repeatable")
	dispatchCmd.Flags().String("user", "", "recipient user id (required)")
	dispatchCmd.Flags().String("company", "", "company id (required)")
	dispatchCmd.Flags().String("actor", "", "user id recorded as the sender (required)")
	dispatchCmd.Flags().String("type", "", "notification type (required)")
	dispatchCmd.Flags().String("project", "", "optional project id")
	dispatchCmd.Flags().StringP("message", "m", "", "notification text (required)")
	for _, name := range []string{"user", "company", "actor", "type", "message"} {
		_ = dispatchCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	endpoints, _ := flags.GetStringSlice("endpoint")
	if len(endpoints) == 0 {
		endpoints = cmnenv.CSV("NOTIFY_ENDPOINTS", []string{"http://localhost:8080"})
	}
	req := notifyclient.DispatchRequest{}
	req.UserID, _ = flags.GetString("user")
	req.CompanyID, _ = flags.GetString("company")
	req.CreatedBy, _ = flags.GetString("actor")
	req.Type, _ = flags.GetString("type")
	req.Message, _ = flags.GetString("message")
	if project, _ := flags.GetString("project"); strings.TrimSpace(project) != "" {
		req.ProjectID = &project
	}

	cfg := app.LoadConfig()
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		return fmt.Errorf("INTERNAL_API_KEY is not set")
	}
	out, err := notifyclient.NewClient(cfg.InternalAPIKey, endpoints...).Dispatch(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "notification %s created for %s\n", out.ID, out.UserID)
	return nil
}
