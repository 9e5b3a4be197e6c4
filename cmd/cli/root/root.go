// Package root holds the top-level recyctl command that the subcommand
// packages attach themselves to.
package root

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "recyctl",
	Short: "RecyChain asset lifecycle CLI",
	Long: `recyctl drives the RecyChain asset lifecycle ledger API: register
devices, record sanitization and recycling transitions, inspect history, and
manage evidence and users.`,
}

// GetRoot returns the shared root command for subcommand registration.
func GetRoot() *cobra.Command {
	return rootCmd
}
