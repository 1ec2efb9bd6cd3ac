package secureec2

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

// API operation names recorded by the fakes.
const (
	opDescribeVpcs                   = "DescribeVpcs"
	opDescribeSubnets                = "DescribeSubnets"
	opDescribeSecurityGroups         = "DescribeSecurityGroups"
	opCreateSecurityGroup            = "CreateSecurityGroup"
	opAuthorizeSecurityGroupIngress  = "AuthorizeSecurityGroupIngress"
	opDescribeImages                 = "DescribeImages"
	opCreateLaunchTemplate           = "CreateLaunchTemplate"
	opCreateLaunchTemplateVersion    = "CreateLaunchTemplateVersion"
	opModifyLaunchTemplate           = "ModifyLaunchTemplate"
	opDescribeLaunchTemplates        = "DescribeLaunchTemplates"
	opDescribeLaunchTemplateVersions = "DescribeLaunchTemplateVersions"
	opRunInstances                   = "RunInstances"
	opDescribeInstances              = "DescribeInstances"
	opAssociateIamInstanceProfile    = "AssociateIamInstanceProfile"
	opDescribeKeyPairs               = "DescribeKeyPairs"

	opCreateRole               = "CreateRole"
	opAttachRolePolicy         = "AttachRolePolicy"
	opCreateInstanceProfile    = "CreateInstanceProfile"
	opGetInstanceProfile       = "GetInstanceProfile"
	opAddRoleToInstanceProfile = "AddRoleToInstanceProfile"
)

func apiError(code, msg string) error {
	return &smithy.GenericAPIError{Code: code, Message: msg}
}

func countOps(ops []string, op string) int {
	n := 0
	for _, o := range ops {
		if o == op {
			n++
		}
	}
	return n
}

type fakeGroup struct {
	id    string
	vpcID string
	rules map[string]bool
}

type fakeTemplate struct {
	id             string
	versions       []*types.RequestLaunchTemplateData
	defaultVersion int64
}

// fakeEC2 keeps just enough state to behave like EC2 across repeated calls.
// Setting a *Func field replaces the stateful behaviour of that method.
type fakeEC2 struct {
	vpcs     []types.Vpc
	subnets  []types.Subnet
	images   []types.Image
	keyPairs []types.KeyPairInfo

	groups    map[string]*fakeGroup
	templates map[string]*fakeTemplate
	instances []string

	describeVpcsFunc                func(ctx context.Context, params *ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error)
	describeSecurityGroupsFunc      func(ctx context.Context, params *ec2.DescribeSecurityGroupsInput) (*ec2.DescribeSecurityGroupsOutput, error)
	createSecurityGroupFunc         func(ctx context.Context, params *ec2.CreateSecurityGroupInput) (*ec2.CreateSecurityGroupOutput, error)
	describeImagesFunc              func(ctx context.Context, params *ec2.DescribeImagesInput) (*ec2.DescribeImagesOutput, error)
	createLaunchTemplateFunc        func(ctx context.Context, params *ec2.CreateLaunchTemplateInput) (*ec2.CreateLaunchTemplateOutput, error)
	runInstancesFunc                func(ctx context.Context, params *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error)
	associateIamInstanceProfileFunc func(ctx context.Context, params *ec2.AssociateIamInstanceProfileInput) (*ec2.AssociateIamInstanceProfileOutput, error)

	// Captured inputs.
	createTemplateInputs []*ec2.CreateLaunchTemplateInput
	modifyTemplateInputs []*ec2.ModifyLaunchTemplateInput
	runInputs            []*ec2.RunInstancesInput
	associateInputs      []*ec2.AssociateIamInstanceProfileInput
	authorizeInputs      []*ec2.AuthorizeSecurityGroupIngressInput

	operations []string
}

var _ EC2API = (*fakeEC2)(nil)

// newFakeEC2 returns a region with one default VPC, one subnet and one
// matching image per OS family, and no security group or template.
func newFakeEC2() *fakeEC2 {
	return &fakeEC2{
		vpcs:    []types.Vpc{{VpcId: aws.String("vpc-default"), IsDefault: aws.Bool(true)}},
		subnets: []types.Subnet{{SubnetId: aws.String("subnet-a"), VpcId: aws.String("vpc-default")}},
		images: []types.Image{{
			ImageId:        aws.String("ami-linux"),
			Name:           aws.String("amzn2-ami-hvm-2.0.20260901.0-x86_64-gp2"),
			CreationDate:   aws.String("2026-09-01T10:00:00.000Z"),
			RootDeviceName: aws.String("/dev/xvda"),
		}},
		groups:    map[string]*fakeGroup{},
		templates: map[string]*fakeTemplate{},
	}
}

func filterValue(filters []types.Filter, name string) string {
	for _, f := range filters {
		if aws.ToString(f.Name) == name && len(f.Values) > 0 {
			return f.Values[0]
		}
	}
	return ""
}

func (f *fakeEC2) DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	f.operations = append(f.operations, opDescribeVpcs)
	if f.describeVpcsFunc != nil {
		return f.describeVpcsFunc(ctx, params)
	}
	return &ec2.DescribeVpcsOutput{Vpcs: f.vpcs}, nil
}

func (f *fakeEC2) DescribeSubnets(_ context.Context, params *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	f.operations = append(f.operations, opDescribeSubnets)
	vpcID := filterValue(params.Filters, "vpc-id")
	var subnets []types.Subnet
	for _, s := range f.subnets {
		if aws.ToString(s.VpcId) == vpcID {
			subnets = append(subnets, s)
		}
	}
	return &ec2.DescribeSubnetsOutput{Subnets: subnets}, nil
}

func (f *fakeEC2) DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	f.operations = append(f.operations, opDescribeSecurityGroups)
	if f.describeSecurityGroupsFunc != nil {
		return f.describeSecurityGroupsFunc(ctx, params)
	}
	name := filterValue(params.Filters, "group-name")
	g, ok := f.groups[name]
	if !ok || g.vpcID != filterValue(params.Filters, "vpc-id") {
		return &ec2.DescribeSecurityGroupsOutput{}, nil
	}
	return &ec2.DescribeSecurityGroupsOutput{
		SecurityGroups: []types.SecurityGroup{{GroupId: aws.String(g.id), GroupName: aws.String(name)}},
	}, nil
}

func (f *fakeEC2) CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	f.operations = append(f.operations, opCreateSecurityGroup)
	if f.createSecurityGroupFunc != nil {
		return f.createSecurityGroupFunc(ctx, params)
	}
	name := aws.ToString(params.GroupName)
	if _, ok := f.groups[name]; ok {
		return nil, apiError(codeGroupExists, "The security group already exists")
	}
	g := &fakeGroup{
		id:    fmt.Sprintf("sg-%04d", len(f.groups)+1),
		vpcID: aws.ToString(params.VpcId),
		rules: map[string]bool{},
	}
	f.groups[name] = g
	return &ec2.CreateSecurityGroupOutput{GroupId: aws.String(g.id)}, nil
}

func (f *fakeEC2) AuthorizeSecurityGroupIngress(_ context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	f.operations = append(f.operations, opAuthorizeSecurityGroupIngress)
	f.authorizeInputs = append(f.authorizeInputs, params)

	var group *fakeGroup
	for _, g := range f.groups {
		if g.id == aws.ToString(params.GroupId) {
			group = g
		}
	}
	if group == nil {
		return nil, apiError(codeGroupNotFound, "The security group does not exist")
	}

	for _, perm := range params.IpPermissions {
		for _, r := range perm.IpRanges {
			rule := fmt.Sprintf("%s/%d/%s", aws.ToString(perm.IpProtocol), aws.ToInt32(perm.FromPort), aws.ToString(r.CidrIp))
			if group.rules[rule] {
				return nil, apiError(codePermissionExists, "the specified rule already exists")
			}
			group.rules[rule] = true
		}
	}
	return &ec2.AuthorizeSecurityGroupIngressOutput{Return: aws.Bool(true)}, nil
}

func (f *fakeEC2) DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	f.operations = append(f.operations, opDescribeImages)
	if f.describeImagesFunc != nil {
		return f.describeImagesFunc(ctx, params)
	}
	return &ec2.DescribeImagesOutput{Images: f.images}, nil
}

func (f *fakeEC2) CreateLaunchTemplate(ctx context.Context, params *ec2.CreateLaunchTemplateInput, _ ...func(*ec2.Options)) (*ec2.CreateLaunchTemplateOutput, error) {
	f.operations = append(f.operations, opCreateLaunchTemplate)
	f.createTemplateInputs = append(f.createTemplateInputs, params)
	if f.createLaunchTemplateFunc != nil {
		return f.createLaunchTemplateFunc(ctx, params)
	}
	name := aws.ToString(params.LaunchTemplateName)
	if _, ok := f.templates[name]; ok {
		return nil, apiError(codeTemplateExists, "Launch template name already in use.")
	}
	tpl := &fakeTemplate{
		id:             fmt.Sprintf("lt-%04d", len(f.templates)+1),
		versions:       []*types.RequestLaunchTemplateData{params.LaunchTemplateData},
		defaultVersion: 1,
	}
	f.templates[name] = tpl
	return &ec2.CreateLaunchTemplateOutput{LaunchTemplate: tpl.describe(name)}, nil
}

func (t *fakeTemplate) describe(name string) *types.LaunchTemplate {
	return &types.LaunchTemplate{
		LaunchTemplateId:     aws.String(t.id),
		LaunchTemplateName:   aws.String(name),
		DefaultVersionNumber: aws.Int64(t.defaultVersion),
		LatestVersionNumber:  aws.Int64(int64(len(t.versions))),
	}
}

func (f *fakeEC2) CreateLaunchTemplateVersion(_ context.Context, params *ec2.CreateLaunchTemplateVersionInput, _ ...func(*ec2.Options)) (*ec2.CreateLaunchTemplateVersionOutput, error) {
	f.operations = append(f.operations, opCreateLaunchTemplateVersion)
	tpl, ok := f.templates[aws.ToString(params.LaunchTemplateName)]
	if !ok {
		return nil, apiError(codeTemplateNotFound, "The specified launch template does not exist.")
	}
	tpl.versions = append(tpl.versions, params.LaunchTemplateData)
	return &ec2.CreateLaunchTemplateVersionOutput{
		LaunchTemplateVersion: &types.LaunchTemplateVersion{
			LaunchTemplateId:   aws.String(tpl.id),
			LaunchTemplateName: params.LaunchTemplateName,
			VersionNumber:      aws.Int64(int64(len(tpl.versions))),
		},
	}, nil
}

func (f *fakeEC2) ModifyLaunchTemplate(_ context.Context, params *ec2.ModifyLaunchTemplateInput, _ ...func(*ec2.Options)) (*ec2.ModifyLaunchTemplateOutput, error) {
	f.operations = append(f.operations, opModifyLaunchTemplate)
	f.modifyTemplateInputs = append(f.modifyTemplateInputs, params)
	name := aws.ToString(params.LaunchTemplateName)
	tpl, ok := f.templates[name]
	if !ok {
		return nil, apiError(codeTemplateNotFound, "The specified launch template does not exist.")
	}
	v, err := strconv.ParseInt(aws.ToString(params.DefaultVersion), 10, 64)
	if err != nil || v < 1 || v > int64(len(tpl.versions)) {
		return nil, apiError("InvalidLaunchTemplateVersion", "bad version")
	}
	tpl.defaultVersion = v
	return &ec2.ModifyLaunchTemplateOutput{LaunchTemplate: tpl.describe(name)}, nil
}

func (f *fakeEC2) DescribeLaunchTemplates(_ context.Context, params *ec2.DescribeLaunchTemplatesInput, _ ...func(*ec2.Options)) (*ec2.DescribeLaunchTemplatesOutput, error) {
	f.operations = append(f.operations, opDescribeLaunchTemplates)
	var out []types.LaunchTemplate
	for _, name := range params.LaunchTemplateNames {
		tpl, ok := f.templates[name]
		if !ok {
			return nil, apiError(codeTemplateNotFound, "At least one of the launch templates specified in the request does not exist.")
		}
		out = append(out, *tpl.describe(name))
	}
	return &ec2.DescribeLaunchTemplatesOutput{LaunchTemplates: out}, nil
}

func (f *fakeEC2) DescribeLaunchTemplateVersions(_ context.Context, params *ec2.DescribeLaunchTemplateVersionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeLaunchTemplateVersionsOutput, error) {
	f.operations = append(f.operations, opDescribeLaunchTemplateVersions)
	name := aws.ToString(params.LaunchTemplateName)
	tpl, ok := f.templates[name]
	if !ok {
		return nil, apiError(codeTemplateNotFound, "The specified launch template does not exist.")
	}

	var out []types.LaunchTemplateVersion
	for _, want := range params.Versions {
		v := tpl.defaultVersion
		if want != versionDefault {
			v, _ = strconv.ParseInt(want, 10, 64)
		}
		req := tpl.versions[v-1]
		data := &types.ResponseLaunchTemplateData{ImageId: req.ImageId}
		for _, nic := range req.NetworkInterfaces {
			data.NetworkInterfaces = append(data.NetworkInterfaces, types.LaunchTemplateInstanceNetworkInterfaceSpecification{
				DeviceIndex: nic.DeviceIndex,
				SubnetId:    nic.SubnetId,
				Groups:      nic.Groups,
			})
		}
		out = append(out, types.LaunchTemplateVersion{
			LaunchTemplateId:   aws.String(tpl.id),
			LaunchTemplateName: aws.String(name),
			VersionNumber:      aws.Int64(v),
			DefaultVersion:     aws.Bool(v == tpl.defaultVersion),
			LaunchTemplateData: data,
		})
	}
	return &ec2.DescribeLaunchTemplateVersionsOutput{LaunchTemplateVersions: out}, nil
}

func (f *fakeEC2) RunInstances(ctx context.Context, params *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.operations = append(f.operations, opRunInstances)
	f.runInputs = append(f.runInputs, params)
	if f.runInstancesFunc != nil {
		return f.runInstancesFunc(ctx, params)
	}
	out := &ec2.RunInstancesOutput{}
	for range aws.ToInt32(params.MaxCount) {
		id := fmt.Sprintf("i-%04d", len(f.instances)+1)
		f.instances = append(f.instances, id)
		out.Instances = append(out.Instances, types.Instance{
			InstanceId: aws.String(id),
			State:      &types.InstanceState{Name: types.InstanceStateNamePending},
		})
	}
	return out, nil
}

func (f *fakeEC2) DescribeInstances(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.operations = append(f.operations, opDescribeInstances)
	reservation := types.Reservation{}
	for _, id := range params.InstanceIds {
		reservation.Instances = append(reservation.Instances, types.Instance{
			InstanceId: aws.String(id),
			State:      &types.InstanceState{Name: types.InstanceStateNameRunning},
		})
	}
	return &ec2.DescribeInstancesOutput{Reservations: []types.Reservation{reservation}}, nil
}

func (f *fakeEC2) AssociateIamInstanceProfile(ctx context.Context, params *ec2.AssociateIamInstanceProfileInput, _ ...func(*ec2.Options)) (*ec2.AssociateIamInstanceProfileOutput, error) {
	f.operations = append(f.operations, opAssociateIamInstanceProfile)
	f.associateInputs = append(f.associateInputs, params)
	if f.associateIamInstanceProfileFunc != nil {
		return f.associateIamInstanceProfileFunc(ctx, params)
	}
	return &ec2.AssociateIamInstanceProfileOutput{
		IamInstanceProfileAssociation: &types.IamInstanceProfileAssociation{
			AssociationId: aws.String("iip-assoc-" + aws.ToString(params.InstanceId)),
			InstanceId:    params.InstanceId,
		},
	}, nil
}

func (f *fakeEC2) DescribeKeyPairs(_ context.Context, _ *ec2.DescribeKeyPairsInput, _ ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error) {
	f.operations = append(f.operations, opDescribeKeyPairs)
	return &ec2.DescribeKeyPairsOutput{KeyPairs: f.keyPairs}, nil
}

// fakeIAM remembers created roles and profiles so repeated calls see
// EntityAlreadyExists the way IAM reports it.
type fakeIAM struct {
	roles    map[string]bool
	policies map[string][]string
	profiles map[string][]string

	createRoleFunc               func(ctx context.Context, params *iam.CreateRoleInput) (*iam.CreateRoleOutput, error)
	addRoleToInstanceProfileFunc func(ctx context.Context, params *iam.AddRoleToInstanceProfileInput) (*iam.AddRoleToInstanceProfileOutput, error)

	createRoleInputs []*iam.CreateRoleInput

	operations []string
}

var _ IAMAPI = (*fakeIAM)(nil)

func newFakeIAM() *fakeIAM {
	return &fakeIAM{
		roles:    map[string]bool{},
		policies: map[string][]string{},
		profiles: map[string][]string{},
	}
}

func (m *fakeIAM) CreateRole(ctx context.Context, params *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	m.operations = append(m.operations, opCreateRole)
	m.createRoleInputs = append(m.createRoleInputs, params)
	if m.createRoleFunc != nil {
		return m.createRoleFunc(ctx, params)
	}
	name := aws.ToString(params.RoleName)
	if m.roles[name] {
		return nil, apiError(codeEntityExists, fmt.Sprintf("Role with name %s already exists.", name))
	}
	m.roles[name] = true
	return &iam.CreateRoleOutput{
		Role: &iamtypes.Role{
			Arn:      aws.String("arn:aws:iam::123456789012:role/" + name),
			RoleName: params.RoleName,
		},
	}, nil
}

func (m *fakeIAM) AttachRolePolicy(_ context.Context, params *iam.AttachRolePolicyInput, _ ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	m.operations = append(m.operations, opAttachRolePolicy)
	name := aws.ToString(params.RoleName)
	if !m.roles[name] {
		return nil, apiError("NoSuchEntity", "The role cannot be found.")
	}
	m.policies[name] = append(m.policies[name], aws.ToString(params.PolicyArn))
	return &iam.AttachRolePolicyOutput{}, nil
}

func (m *fakeIAM) CreateInstanceProfile(_ context.Context, params *iam.CreateInstanceProfileInput, _ ...func(*iam.Options)) (*iam.CreateInstanceProfileOutput, error) {
	m.operations = append(m.operations, opCreateInstanceProfile)
	name := aws.ToString(params.InstanceProfileName)
	if _, ok := m.profiles[name]; ok {
		return nil, apiError(codeEntityExists, fmt.Sprintf("Instance Profile %s already exists.", name))
	}
	m.profiles[name] = nil
	return &iam.CreateInstanceProfileOutput{
		InstanceProfile: &iamtypes.InstanceProfile{
			Arn:                 aws.String("arn:aws:iam::123456789012:instance-profile/" + name),
			InstanceProfileName: params.InstanceProfileName,
		},
	}, nil
}

func (m *fakeIAM) GetInstanceProfile(_ context.Context, params *iam.GetInstanceProfileInput, _ ...func(*iam.Options)) (*iam.GetInstanceProfileOutput, error) {
	m.operations = append(m.operations, opGetInstanceProfile)
	name := aws.ToString(params.InstanceProfileName)
	roles, ok := m.profiles[name]
	if !ok {
		return nil, apiError("NoSuchEntity", "Instance Profile cannot be found.")
	}
	profile := &iamtypes.InstanceProfile{InstanceProfileName: aws.String(name)}
	for _, r := range roles {
		profile.Roles = append(profile.Roles, iamtypes.Role{RoleName: aws.String(r)})
	}
	return &iam.GetInstanceProfileOutput{InstanceProfile: profile}, nil
}

func (m *fakeIAM) AddRoleToInstanceProfile(ctx context.Context, params *iam.AddRoleToInstanceProfileInput, _ ...func(*iam.Options)) (*iam.AddRoleToInstanceProfileOutput, error) {
	m.operations = append(m.operations, opAddRoleToInstanceProfile)
	if m.addRoleToInstanceProfileFunc != nil {
		return m.addRoleToInstanceProfileFunc(ctx, params)
	}
	name := aws.ToString(params.InstanceProfileName)
	if len(m.profiles[name]) > 0 {
		return nil, apiError("LimitExceeded", "Cannot exceed quota for InstanceSessionsPerInstanceProfile: 1")
	}
	m.profiles[name] = append(m.profiles[name], aws.ToString(params.RoleName))
	return &iam.AddRoleToInstanceProfileOutput{}, nil
}

type fakeSTS struct {
	err error
}

func (s *fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:iam::123456789012:user/alice"),
		UserId:  aws.String("AIDAEXAMPLE"),
	}, nil
}

const testIP = "203.0.113.10"

func newTestProvisioner(e *fakeEC2, i *fakeIAM) *Provisioner {
	p := New(e, i, &fakeSTS{}, "us-east-1", "alice")
	p.PublicIP = func(context.Context) (string, error) { return testIP, nil }
	p.ProfileRetryBackoff = time.Millisecond
	return p
}
