// recyctl is the terminal client for the RecyChain API.
package main

import (
	"fmt"
	"os"

	"github.com/recychain/recychain/cmd/cli/assets"
	"github.com/recychain/recychain/cmd/cli/auth"
	"github.com/recychain/recychain/cmd/cli/evidence"
	"github.com/recychain/recychain/cmd/cli/root"
	"github.com/recychain/recychain/cmd/cli/users"
)

func main() {
	cmd := root.GetRoot()

	auth.InitAuth(cmd)
	assets.InitAssets(cmd)
	evidence.InitEvidence(cmd)
	users.InitUsers(cmd)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
