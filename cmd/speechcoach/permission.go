package main

import (
	"fmt"

	"speechcoach/pkg/recorder"

	"github.com/spf13/cobra"
)

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Manage stored microphone consent",
}

func consentStore() *recorder.FilePermissions {
	return recorder.NewFilePermissions(cfg.Permission.ConsentFile, nil, logger)
}

var permissionGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Allow speechcoach to record from the microphone",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := consentStore().Set(recorder.PermissionGranted); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Microphone access granted.")
		return nil
	},
}

var permissionRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Withdraw microphone consent",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := consentStore().Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Microphone access revoked.")
		return nil
	},
}

var permissionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored microphone consent",
	RunE: func(cmd *cobra.Command, args []string) error {
		answer, err := consentStore().Check(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Microphone permission: %s (mode %s)\n", answer, cfg.Permission.Mode)
		return nil
	},
}

func init() {
	permissionCmd.AddCommand(permissionGrantCmd, permissionRevokeCmd, permissionStatusCmd)
}
