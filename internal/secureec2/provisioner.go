package secureec2

import (
	"context"
	"time"

	"github.com/avishayil/secure-ec2/internal/environment"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// EC2API is the subset of the EC2 client the provisioner calls.
type EC2API interface {
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	CreateLaunchTemplate(ctx context.Context, params *ec2.CreateLaunchTemplateInput, optFns ...func(*ec2.Options)) (*ec2.CreateLaunchTemplateOutput, error)
	CreateLaunchTemplateVersion(ctx context.Context, params *ec2.CreateLaunchTemplateVersionInput, optFns ...func(*ec2.Options)) (*ec2.CreateLaunchTemplateVersionOutput, error)
	ModifyLaunchTemplate(ctx context.Context, params *ec2.ModifyLaunchTemplateInput, optFns ...func(*ec2.Options)) (*ec2.ModifyLaunchTemplateOutput, error)
	DescribeLaunchTemplates(ctx context.Context, params *ec2.DescribeLaunchTemplatesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeLaunchTemplatesOutput, error)
	DescribeLaunchTemplateVersions(ctx context.Context, params *ec2.DescribeLaunchTemplateVersionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeLaunchTemplateVersionsOutput, error)
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	AssociateIamInstanceProfile(ctx context.Context, params *ec2.AssociateIamInstanceProfileInput, optFns ...func(*ec2.Options)) (*ec2.AssociateIamInstanceProfileOutput, error)
	DescribeKeyPairs(ctx context.Context, params *ec2.DescribeKeyPairsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error)
}

// IAMAPI is the subset of the IAM client EnsureAccessRole calls.
type IAMAPI interface {
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
	CreateInstanceProfile(ctx context.Context, params *iam.CreateInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.CreateInstanceProfileOutput, error)
	GetInstanceProfile(ctx context.Context, params *iam.GetInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.GetInstanceProfileOutput, error)
	AddRoleToInstanceProfile(ctx context.Context, params *iam.AddRoleToInstanceProfileInput, optFns ...func(*iam.Options)) (*iam.AddRoleToInstanceProfileOutput, error)
}

// STSAPI is the subset of the STS client CallerIdentity calls.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

var (
	_ EC2API = (*ec2.Client)(nil)
	_ IAMAPI = (*iam.Client)(nil)
	_ STSAPI = (*sts.Client)(nil)
)

const (
	DefaultImageOwner     = "amazon"
	DefaultRunningTimeout = 15 * time.Minute

	defaultProfileRetryBackoff  = 2 * time.Second
	defaultProfileRetryAttempts = 10
)

// Provisioner carries the clients and caller facts shared by every operation.
// It holds no state between calls.
type Provisioner struct {
	EC2 EC2API
	IAM IAMAPI
	STS STSAPI

	// Region the clients are bound to, used to build access URLs.
	Region string

	// Username is the sanitized local account name that prefixes every
	// created resource name.
	Username string

	// PublicIP returns the caller's public address. Defaults to
	// environment.PublicIP.
	PublicIP func(ctx context.Context) (string, error)

	// ImageOwner restricts image lookups to one owner alias or account.
	ImageOwner string

	// Metadata is the instance metadata service mode written to templates.
	Metadata MetadataMode

	// RunningTimeout bounds the wait for launched instances to run.
	RunningTimeout time.Duration

	// ProfileRetryBackoff is the first delay between profile association
	// attempts while IAM propagates a new profile. It doubles up to 30s.
	ProfileRetryBackoff  time.Duration
	ProfileRetryAttempts int
}

// New returns a Provisioner with the default image owner, metadata mode and
// timeouts.
func New(ec2Client EC2API, iamClient IAMAPI, stsClient STSAPI, region, username string) *Provisioner {
	return &Provisioner{
		EC2:                  ec2Client,
		IAM:                  iamClient,
		STS:                  stsClient,
		Region:               region,
		Username:             username,
		PublicIP:             environment.PublicIP,
		ImageOwner:           DefaultImageOwner,
		Metadata:             MetadataV2,
		RunningTimeout:       DefaultRunningTimeout,
		ProfileRetryBackoff:  defaultProfileRetryBackoff,
		ProfileRetryAttempts: defaultProfileRetryAttempts,
	}
}
