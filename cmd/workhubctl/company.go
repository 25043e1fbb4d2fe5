package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"workhub/server/notify/app"
	"workhub/server/notify/domain"
)

var companyCmd = &cobra.Command{
	Use:   "company",
	Short: "Seed companies and memberships",
}

var companyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a company",
	RunE:  runCompanyCreate,
}

var memberAddCmd = &cobra.Command{
	Use:   "add-member",
	Short: "Add a user to a company or change their role",
	RunE:  runMemberAdd,
}

func init() {
	companyCreateCmd.Flags().String("name", "", "company name (required)")
	_ = companyCreateCmd.MarkFlagRequired("name")

	memberAddCmd.Flags().String("company", "", "company id (required)")
	memberAddCmd.Flags().String("user", "", "user id (required)")
	memberAddCmd.Flags().String("role", string(domain.RoleMember), "admin, editor or member")
	_ = memberAddCmd.MarkFlagRequired("company")
	_ = memberAddCmd.MarkFlagRequired("user")

	companyCmd.AddCommand(companyCreateCmd, memberAddCmd)
	rootCmd.AddCommand(companyCmd)
}

func runCompanyCreate(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	store, closeStore, err := storeFactory(cmd.Context(), app.LoadConfig())
	if err != nil {
		return err
	}
	defer closeStore()

	company, err := store.CreateCompany(cmd.Context(), domain.Company{Name: name})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), company.ID)
	return nil
}

func runMemberAdd(cmd *cobra.Command, args []string) error {
	companyID, _ := cmd.Flags().GetString("company")
	userID, _ := cmd.Flags().GetString("user")
	rawRole, _ := cmd.Flags().GetString("role")
	role := domain.Role(rawRole)
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", rawRole)
	}

	store, closeStore, err := storeFactory(cmd.Context(), app.LoadConfig())
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.AddMember(cmd.Context(), companyID, userID, role); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s of %s\n", userID, role, companyID)
	return nil
}
