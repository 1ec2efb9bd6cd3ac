package secureec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
)

// NetworkTarget is where launched instances attach.
type NetworkTarget struct {
	VPCID    string
	SubnetID string
}

// DefaultVPC returns the ID of the region's default VPC.
func (p *Provisioner) DefaultVPC(ctx context.Context) (string, error) {
	out, err := p.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{filter("isDefault", "true")},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	for _, vpc := range out.Vpcs {
		if vpc.VpcId != nil {
			return *vpc.VpcId, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoDefaultVPC, p.Region)
}

// Subnet returns a subnet of vpcID. The provider's listing order is
// unspecified; the last listed subnet is used.
func (p *Provisioner) Subnet(ctx context.Context, vpcID string) (string, error) {
	out, err := p.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{filter("vpc-id", vpcID)},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if len(out.Subnets) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoSubnet, vpcID)
	}
	return aws.ToString(out.Subnets[len(out.Subnets)-1].SubnetId), nil
}

// Network resolves the default VPC and its subnet.
func (p *Provisioner) Network(ctx context.Context) (target NetworkTarget, err error) {
	ctx, span := p.startSpan(ctx, "Network")
	defer func() { endSpan(span, err) }()

	log := clog.FromContext(ctx)

	target.VPCID, err = p.DefaultVPC(ctx)
	if err != nil {
		return NetworkTarget{}, err
	}
	target.SubnetID, err = p.Subnet(ctx, target.VPCID)
	if err != nil {
		return NetworkTarget{}, err
	}

	log.Info("resolved network", "vpc_id", target.VPCID, "subnet_id", target.SubnetID)
	return target, nil
}
