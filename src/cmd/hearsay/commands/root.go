package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

// RootCmd is the root command for hearsay
var RootCmd = &cobra.Command{
	Use:              "hearsay",
	Short:            "hearsay item gossip",
	TraverseChildren: true,
}
