// Package awsclient builds the AWS service clients used by secure-ec2.
//
// Every caller builds its own client from an explicit ClientContext; nothing
// in this package holds a client or configuration between calls.
package awsclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	DefaultRegion         = "us-east-1"
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 5 * time.Second
	DefaultMaxAttempts    = 10
)

// ClientContext carries everything needed to build an authenticated client.
// It is a value type; copies are independent.
type ClientContext struct {
	Region  string
	Profile string // optional named profile from the shared config files

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxAttempts    int
}

// NewClientContext returns a ClientContext with the fixed timeout and retry
// bounds applied.
func NewClientContext(region, profile string) ClientContext {
	if region == "" {
		region = DefaultRegion
	}
	return ClientContext{
		Region:         region,
		Profile:        profile,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
		MaxAttempts:    DefaultMaxAttempts,
	}
}

var ErrLoadConfig = fmt.Errorf("failed to load AWS configuration")

// LoadConfig validates the region for service and loads the shared AWS
// configuration with the ClientContext's bounds.
func LoadConfig(ctx context.Context, cc ClientContext, service string) (aws.Config, error) {
	if err := ValidateRegion(service, cc.Region); err != nil {
		return aws.Config{}, err
	}

	httpClient := awshttp.NewBuildableClient().
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = cc.ConnectTimeout
		}).
		WithTransportOptions(func(tr *http.Transport) {
			tr.ResponseHeaderTimeout = cc.ReadTimeout
		})

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cc.Region),
		config.WithHTTPClient(httpClient),
		config.WithRetryMode(aws.RetryModeStandard),
		config.WithRetryMaxAttempts(cc.MaxAttempts),
	}
	if cc.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cc.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	return cfg, nil
}

// NewEC2 builds an EC2 client.
func NewEC2(ctx context.Context, cc ClientContext) (*ec2.Client, error) {
	cfg, err := LoadConfig(ctx, cc, ServiceEC2)
	if err != nil {
		return nil, err
	}
	return ec2.NewFromConfig(cfg), nil
}

// NewIAM builds an IAM client. IAM is global, so any region is accepted.
func NewIAM(ctx context.Context, cc ClientContext) (*iam.Client, error) {
	cfg, err := LoadConfig(ctx, cc, ServiceIAM)
	if err != nil {
		return nil, err
	}
	return iam.NewFromConfig(cfg), nil
}

// NewSTS builds an STS client.
func NewSTS(ctx context.Context, cc ClientContext) (*sts.Client, error) {
	cfg, err := LoadConfig(ctx, cc, ServiceSTS)
	if err != nil {
		return nil, err
	}
	return sts.NewFromConfig(cfg), nil
}
