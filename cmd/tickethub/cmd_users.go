package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tickethub/tickethub/app/repositories"
	"github.com/tickethub/tickethub/app/services"
	"github.com/tickethub/tickethub/internal/server"
)

// tickethub user:role <email> <USER|ADMIN>
var userRoleCmd = &cobra.Command{
	Use:   "user:role <email> <role>",
	Short: "Set a user's role; the way to create the first ADMIN",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.WithRepositories(cmd.Context(), func(repos repositories.Repositories) error {
			u, err := services.NewUserService(repos.Users).UpdateRoleByEmail(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("%s is now %s\n", u.Email, u.Role)
			return nil
		})
	},
}
