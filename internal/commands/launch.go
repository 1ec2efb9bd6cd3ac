package commands

import (
	"context"
	"fmt"

	"github.com/avishayil/secure-ec2/internal/secureec2"
	"github.com/spf13/cobra"
)

// Launch returns the launch command, which provisions from an existing
// launch template.
func Launch(g *globalFlags) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch instances from your launch template",
		Long: `Launch instances from the default version of the launch template written by
"secure-ec2 config". Pass --keypair None to launch without a key and connect
through Session Manager instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			interactive := stdinIsTerminal()
			if err := opts.preflight(stageLaunch, interactive); err != nil {
				return err
			}

			return g.withProvisioner(cmd, opts.metadataMode(), func(ctx context.Context, p *secureec2.Provisioner) error {
				if err := opts.complete(ctx, stageLaunch, interactive, p.KeyPairs); err != nil {
					return err
				}
				if err := opts.validate(stageLaunch); err != nil {
					return err
				}

				tpl, err := p.LatestTemplate(ctx, opts.osFamily())
				if err != nil {
					return err
				}
				return provision(ctx, cmd, p, tpl, opts)
			})
		},
	}

	opts.addLaunchFlags(cmd, true)
	return cmd
}

// provision launches from tpl and reports the result.
func provision(ctx context.Context, cmd *cobra.Command, p *secureec2.Provisioner, tpl secureec2.LaunchTemplate, opts *Options) error {
	inst, err := p.Provision(ctx, tpl, opts.Count, opts.KeyPair, opts.InstanceType)
	if err != nil {
		return err
	}

	url := inst.AccessURL(p.Region)
	fmt.Fprintln(cmd.OutOrStdout(), renderInstance(inst, url))
	if !opts.NoClip {
		copyURL(ctx, url)
	}
	return nil
}
