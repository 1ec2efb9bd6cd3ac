package secureec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/chainguard-dev/clog"
)

// Identity is the principal the configured credentials resolve to.
type Identity struct {
	Account string
	ARN     string
	UserID  string
}

// CallerIdentity checks that credentials are usable and reports whose they
// are.
func (p *Provisioner) CallerIdentity(ctx context.Context) (id Identity, err error) {
	ctx, span := p.startSpan(ctx, "CallerIdentity")
	defer func() { endSpan(span, err) }()

	out, err := p.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrCredentials, err)
	}

	id = Identity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}
	clog.FromContext(ctx).Info("resolved caller identity", "account", id.Account, "arn", id.ARN)
	return id, nil
}
