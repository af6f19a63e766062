package main

import (
	"fmt"

	"github.com/itchan-dev/starter/shared/api"
	"github.com/spf13/cobra"
)

func newLoginCmd(global *globalFlags) *cobra.Command {
	var req api.LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token in the token file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, global)
			if err != nil {
				return wrapErr(cmd, err)
			}
			token, err := e.apiClient().Login(cmd.Context(), req)
			if err != nil {
				return wrapErr(cmd, err)
			}
			if err := e.session.Save(token); err != nil {
				return wrapErr(cmd, fmt.Errorf("save token: %w", err))
			}
			fmt.Fprintf(e.out, "logged in as %s\n", req.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, global)
			if err != nil {
				return wrapErr(cmd, err)
			}
			e.session.Clear()
			fmt.Fprintln(e.out, "logged out")
			return nil
		},
	}
}
