package commands

import (
	"context"
	"log/slog"

	"github.com/avishayil/secure-ec2/internal/awsclient"
	"github.com/avishayil/secure-ec2/internal/environment"
	"github.com/avishayil/secure-ec2/internal/log"
	"github.com/avishayil/secure-ec2/internal/o11y"
	"github.com/avishayil/secure-ec2/internal/secureec2"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/avishayil/secure-ec2/internal/commands")

// withProvisioner sets up logging and tracing for cmd, builds a Provisioner
// for the selected profile and region, checks the credentials and calls fn.
func (g *globalFlags) withProvisioner(cmd *cobra.Command, metadata secureec2.MetadataMode, fn func(ctx context.Context, p *secureec2.Provisioner) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logExport, shutdownLogs, err := o11y.SetupLogExport(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownLogs(context.WithoutCancel(ctx)) }()

	ctx, closeLog := log.Setup(ctx, log.Options{
		Command:  cmd.Name(),
		Debug:    g.debug,
		Handlers: []slog.Handler{logExport},
	})
	defer closeLog()

	shutdownTraces, err := o11y.SetupTracing(ctx)
	if err != nil {
		clog.FromContext(ctx).Warn("failed to set up tracing", "error", err)
	}
	defer func() { _ = shutdownTraces(context.WithoutCancel(ctx)) }()

	cc := awsclient.NewClientContext(g.region, g.profile)
	username := environment.Username()
	if username == "" {
		clog.FromContext(ctx).Warn("could not determine a local username, resource names will be unprefixed")
	}

	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With(
		o11y.AttrCommand, cmd.Name(),
		o11y.AttrRegion, cc.Region,
	))

	ctx, span := tracer.Start(ctx, "secure-ec2 "+cmd.Name())
	span.SetAttributes(
		attribute.String(o11y.AttrCommand, cmd.Name()),
		attribute.String(o11y.AttrRegion, cc.Region),
		attribute.String(o11y.AttrUsername, username),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			clog.FromContext(ctx).Debug("command failed", "error", err)
		}
		span.End()
	}()

	p, err := newProvisioner(ctx, cc, username)
	if err != nil {
		return err
	}
	p.Metadata = metadata

	if _, err := p.CallerIdentity(ctx); err != nil {
		return err
	}
	return fn(ctx, p)
}

// newProvisioner builds one client per service from cc.
func newProvisioner(ctx context.Context, cc awsclient.ClientContext, username string) (*secureec2.Provisioner, error) {
	ec2Client, err := awsclient.NewEC2(ctx, cc)
	if err != nil {
		return nil, err
	}
	iamClient, err := awsclient.NewIAM(ctx, cc)
	if err != nil {
		return nil, err
	}
	stsClient, err := awsclient.NewSTS(ctx, cc)
	if err != nil {
		return nil, err
	}
	return secureec2.New(ec2Client, iamClient, stsClient, cc.Region, username), nil
}
