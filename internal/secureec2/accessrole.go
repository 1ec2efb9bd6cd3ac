package secureec2

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/chainguard-dev/clog"
)

const (
	// AccessRoleName names both the role and the instance profile that let
	// Session Manager reach an instance.
	AccessRoleName = "SessionManagerInstanceProfile"

	// SSMManagedPolicyARN is the AWS managed policy Session Manager requires.
	SSMManagedPolicyARN = "arn:aws:iam::aws:policy/AmazonSSMManagedInstanceCore"

	iamPolicyVersion    = "2012-10-17"
	iamEffectAllow      = "Allow"
	awsServiceEC2       = "ec2.amazonaws.com"
	stsActionAssumeRole = "sts:AssumeRole"

	iamRoleDescription = "Session Manager access for secure-ec2 instances"
)

// AccessRole identifies the role and instance profile used for broker access.
type AccessRole struct {
	RoleName    string
	PolicyARN   string
	ProfileName string
}

var errTrustPolicyMarshal = fmt.Errorf("failed to marshal trust policy")

// EnsureAccessRole makes sure the Session Manager role exists with the managed
// policy attached and is the role of an instance profile of the same name.
// Pieces that already exist are left as they are.
func (p *Provisioner) EnsureAccessRole(ctx context.Context) (role AccessRole, err error) {
	ctx, span := p.startSpan(ctx, "EnsureAccessRole")
	defer func() { endSpan(span, err) }()

	role = AccessRole{
		RoleName:    AccessRoleName,
		PolicyARN:   SSMManagedPolicyARN,
		ProfileName: AccessRoleName,
	}

	if err := p.iamRoleCreate(ctx, role.RoleName); err != nil {
		return AccessRole{}, err
	}
	if err := p.iamRoleAttachPolicy(ctx, role.RoleName, role.PolicyARN); err != nil {
		return AccessRole{}, err
	}

	created, err := p.iamInstanceProfileCreate(ctx, role.ProfileName)
	if err != nil {
		return AccessRole{}, err
	}
	if !created {
		attached, err := p.iamInstanceProfileHasRole(ctx, role.ProfileName, role.RoleName)
		if err != nil {
			return AccessRole{}, err
		}
		if attached {
			return role, nil
		}
	}

	if err := p.iamInstanceProfileAddRole(ctx, role.ProfileName, role.RoleName); err != nil {
		return AccessRole{}, err
	}
	return role, nil
}

func ec2TrustPolicy() (string, error) {
	trustPolicy := map[string]any{
		"Version": iamPolicyVersion,
		"Statement": []map[string]any{
			{
				"Effect": iamEffectAllow,
				"Principal": map[string]any{
					"Service": awsServiceEC2,
				},
				"Action": stsActionAssumeRole,
			},
		},
	}

	b, err := json.Marshal(trustPolicy)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errTrustPolicyMarshal, err)
	}
	return string(b), nil
}

func (p *Provisioner) iamRoleCreate(ctx context.Context, roleName string) error {
	log := clog.FromContext(ctx)

	trustPolicy, err := ec2TrustPolicy()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAccessRole, err)
	}

	log.Info("creating IAM role", "role_name", roleName)
	_, err = p.IAM.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(roleName),
		AssumeRolePolicyDocument: aws.String(trustPolicy),
		Description:              aws.String(iamRoleDescription),
		Tags:                     iamTags(roleName),
	})
	if IsConflict(err) {
		log.Info("IAM role already exists", "role_name", roleName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAccessRole, err)
	}

	log.Info("created IAM role", "role_name", roleName)
	return nil
}

// iamRoleAttachPolicy attaches a managed policy. Attaching an already
// attached policy succeeds.
func (p *Provisioner) iamRoleAttachPolicy(ctx context.Context, roleName, policyARN string) error {
	log := clog.FromContext(ctx)

	_, err := p.IAM.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(roleName),
		PolicyArn: aws.String(policyARN),
	})
	if err != nil && !IsConflict(err) {
		return fmt.Errorf("%w: %w", ErrAccessRole, err)
	}

	log.Info("attached policy to IAM role", "role_name", roleName, "policy_arn", policyARN)
	return nil
}

// iamInstanceProfileCreate reports whether the profile was created by this
// call.
func (p *Provisioner) iamInstanceProfileCreate(ctx context.Context, profileName string) (bool, error) {
	log := clog.FromContext(ctx)

	_, err := p.IAM.CreateInstanceProfile(ctx, &iam.CreateInstanceProfileInput{
		InstanceProfileName: aws.String(profileName),
		Tags:                iamTags(profileName),
	})
	if IsConflict(err) {
		log.Info("instance profile already exists", "profile_name", profileName)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAccessRole, err)
	}

	log.Info("created instance profile", "profile_name", profileName)
	return true, nil
}

func (p *Provisioner) iamInstanceProfileHasRole(ctx context.Context, profileName, roleName string) (bool, error) {
	out, err := p.IAM.GetInstanceProfile(ctx, &iam.GetInstanceProfileInput{
		InstanceProfileName: aws.String(profileName),
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrAccessRole, err)
	}
	if out.InstanceProfile == nil {
		return false, nil
	}
	return slices.ContainsFunc(out.InstanceProfile.Roles, func(r iamtypes.Role) bool {
		return aws.ToString(r.RoleName) == roleName
	}), nil
}

func (p *Provisioner) iamInstanceProfileAddRole(ctx context.Context, profileName, roleName string) error {
	log := clog.FromContext(ctx)

	_, err := p.IAM.AddRoleToInstanceProfile(ctx, &iam.AddRoleToInstanceProfileInput{
		InstanceProfileName: aws.String(profileName),
		RoleName:            aws.String(roleName),
	})
	if err != nil && !IsConflict(err) {
		return fmt.Errorf("%w: %w", ErrAccessRole, err)
	}

	log.Info("added role to instance profile", "profile_name", profileName, "role_name", roleName)
	return nil
}
