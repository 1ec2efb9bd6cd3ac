// Package commands defines the secure-ec2 command tree.
//
// Commands parse and validate flags, prompt for anything missing when
// attached to a terminal, and hand off to a secureec2.Provisioner built for
// the selected profile and region.
package commands

import (
	"os"

	"github.com/avishayil/secure-ec2/internal/awsclient"
	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	debug   bool
	profile string
	region  string
}

// Root returns the root command for the secure-ec2 CLI.
func Root() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "secure-ec2",
		Short:         "Launch EC2 instances reachable only from your IP or through Session Manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&g.debug, "debug", false, "log debug output to the terminal")
	flags.StringVar(&g.profile, "profile", "", "named AWS profile from the shared config files")
	flags.StringVar(&g.region, "region", defaultRegion(), "AWS region to provision in")

	cmd.AddCommand(Config(g))
	cmd.AddCommand(Launch(g))
	cmd.AddCommand(Run(g))
	cmd.AddCommand(Version())

	return cmd
}

func defaultRegion() string {
	for _, env := range []string{"AWS_REGION", "AWS_DEFAULT_REGION"} {
		if r := os.Getenv(env); r != "" {
			return r
		}
	}
	return awsclient.DefaultRegion
}
