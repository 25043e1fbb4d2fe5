package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"workhub/server/notify/app"
	"workhub/server/notify/service"
)

var announceCmd = &cobra.Command{
	Use:   "announce",
	Short: "Send a system announcement to every member of a company",
	RunE:  runAnnounce,
}

func init() {
	announceCmd.Flags().String("company", "", "company id (required)")
	announceCmd.Flags().String("actor", "", "user id recorded as the sender (required)")
	announceCmd.Flags().StringP("message", "m", "", "announcement text (required)")
	_ = announceCmd.MarkFlagRequired("company")
	_ = announceCmd.MarkFlagRequired("actor")
	_ = announceCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(announceCmd)
}

func runAnnounce(cmd *cobra.Command, args []string) error {
	companyID, _ := cmd.Flags().GetString("company")
	actorID, _ := cmd.Flags().GetString("actor")
	message, _ := cmd.Flags().GetString("message")

	cfg := app.LoadConfig()
	store, closeStore, err := storeFactory(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	hub, closeHub, err := hubFactory(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeHub()

	dispatcher := service.NewDispatcher(store, hub)
	sent, err := service.NewNotificationService(store, store, dispatcher).Announce(cmd.Context(), companyID, actorID, message)
	if err != nil {
		return fmt.Errorf("announce (sent %d before failing): %w", sent, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "announcement sent to %d members\n", sent)
	return nil
}
