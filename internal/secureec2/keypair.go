package secureec2

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// KeyPairs lists the names of the region's key pairs, sorted.
func (p *Provisioner) KeyPairs(ctx context.Context) ([]string, error) {
	out, err := p.EC2.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyPairs, err)
	}

	names := make([]string, 0, len(out.KeyPairs))
	for _, kp := range out.KeyPairs {
		if name := aws.ToString(kp.KeyName); name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}
