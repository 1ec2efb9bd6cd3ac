package commands

import (
	"context"

	"github.com/avishayil/secure-ec2/internal/secureec2"
	"github.com/spf13/cobra"
)

// Run returns the run command, which does config and launch in one go.
func Run(g *globalFlags) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Refresh your launch template and launch instances from it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interactive := stdinIsTerminal()
			if err := opts.preflight(stageConfig|stageLaunch, interactive); err != nil {
				return err
			}

			return g.withProvisioner(cmd, opts.metadataMode(), func(ctx context.Context, p *secureec2.Provisioner) error {
				if err := opts.complete(ctx, stageConfig|stageLaunch, interactive, p.KeyPairs); err != nil {
					return err
				}
				if err := opts.validate(stageConfig | stageLaunch); err != nil {
					return err
				}

				tpl, err := p.MaterializeTemplate(ctx, opts.osFamily())
				if err != nil {
					return err
				}
				return provision(ctx, cmd, p, tpl, opts)
			})
		},
	}

	opts.addConfigFlags(cmd)
	opts.addLaunchFlags(cmd, false)
	return cmd
}
