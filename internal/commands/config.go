package commands

import (
	"context"
	"fmt"

	"github.com/avishayil/secure-ec2/internal/secureec2"
	"github.com/spf13/cobra"
)

// Config returns the config command, which writes the launch template.
func Config(g *globalFlags) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or refresh your launch template for an OS family",
		Long: `Resolve the newest image, the default VPC and subnet, and a security group
open only to your current public IP, then store them in a launch template.
Running it again writes a new template version and makes it the default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interactive := stdinIsTerminal()
			if err := opts.preflight(stageConfig, interactive); err != nil {
				return err
			}
			if err := opts.complete(cmd.Context(), stageConfig, interactive, nil); err != nil {
				return err
			}
			if err := opts.validate(stageConfig); err != nil {
				return err
			}

			return g.withProvisioner(cmd, opts.metadataMode(), func(ctx context.Context, p *secureec2.Provisioner) error {
				tpl, err := p.MaterializeTemplate(ctx, opts.osFamily())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTemplate(tpl))
				return nil
			})
		},
	}

	opts.addConfigFlags(cmd)
	return cmd
}
