package secureec2

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/avishayil/secure-ec2/internal/o11y"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// NoKeyPair is the key pair value, matched case-insensitively, that launches
// instances without a key and grants Session Manager access instead.
const NoKeyPair = "None"

// AccessMode is how an operator reaches a launched instance.
type AccessMode string

const (
	AccessKeyPair AccessMode = "keypair"
	AccessBroker  AccessMode = "broker"
)

// Instance describes the result of one launch.
type Instance struct {
	// ID is the first launched instance, the one access URLs point at.
	ID         string
	IDs        []string
	AccessMode AccessMode
}

var (
	ErrInvalidCount        = fmt.Errorf("%w: instance count must be between 1 and 2147483647", ErrInvalidInput)
	ErrInvalidInstanceType = fmt.Errorf("%w: instance type is required", ErrInvalidInput)
	ErrInvalidKeyPair      = fmt.Errorf("%w: key pair is required, use %q for Session Manager access", ErrInvalidInput, NoKeyPair)
	ErrInstanceLaunchEmpty = fmt.Errorf("%w: launch succeeded but returned no instances", ErrInstanceLaunch)
)

// IsNoKeyPair reports whether keyPair requests broker access.
func IsNoKeyPair(keyPair string) bool {
	return strings.EqualFold(strings.TrimSpace(keyPair), NoKeyPair)
}

// Provision launches count instances of instanceType from the default version
// of tpl and waits for them to run. With NoKeyPair the instances get the
// Session Manager instance profile once running.
func (p *Provisioner) Provision(ctx context.Context, tpl LaunchTemplate, count int, keyPair, instanceType string) (inst Instance, err error) {
	switch {
	case count < 1 || count > math.MaxInt32:
		return Instance{}, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	case instanceType == "":
		return Instance{}, ErrInvalidInstanceType
	case strings.TrimSpace(keyPair) == "":
		return Instance{}, ErrInvalidKeyPair
	}

	broker := IsNoKeyPair(keyPair)
	inst.AccessMode = AccessKeyPair
	if broker {
		inst.AccessMode = AccessBroker
	}

	ctx, span := p.startSpan(ctx, "Provision",
		attribute.String(o11y.AttrTemplate, tpl.Name),
		attribute.Int("count", count),
		attribute.String("instance_type", instanceType),
		attribute.String("access_mode", string(inst.AccessMode)),
	)
	defer func() { endSpan(span, err) }()

	inst.IDs, err = p.runInstances(ctx, tpl, count, keyPair, instanceType, broker)
	if err != nil {
		return Instance{}, err
	}
	inst.ID = inst.IDs[0]

	if err := p.waitRunning(ctx, inst.IDs); err != nil {
		return Instance{}, err
	}

	if !broker {
		return inst, nil
	}

	role, err := p.EnsureAccessRole(ctx)
	if err != nil {
		return Instance{}, err
	}
	for _, id := range inst.IDs {
		if err := p.associateProfile(ctx, id, role.ProfileName); err != nil {
			return Instance{}, err
		}
	}
	return inst, nil
}

func (p *Provisioner) runInstances(ctx context.Context, tpl LaunchTemplate, count int, keyPair, instanceType string, broker bool) ([]string, error) {
	log := clog.FromContext(ctx)

	input := &ec2.RunInstancesInput{
		LaunchTemplate: &types.LaunchTemplateSpecification{
			LaunchTemplateName: aws.String(tpl.Name),
			Version:            aws.String(versionDefault),
		},
		InstanceType: types.InstanceType(instanceType),
		MinCount:     aws.Int32(int32(count)),
		MaxCount:     aws.Int32(int32(count)),
		// A fixed token per call makes SDK retries of this request idempotent.
		ClientToken: aws.String(uuid.NewString()),
	}
	if !broker {
		input.KeyName = aws.String(keyPair)
	}

	log.Info("launching instances", "template", tpl.Name, "count", count, "instance_type", instanceType)
	out, err := p.EC2.RunInstances(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInstanceLaunch, err)
	}

	ids := make([]string, 0, len(out.Instances))
	for _, i := range out.Instances {
		if i.InstanceId != nil {
			ids = append(ids, *i.InstanceId)
		}
	}
	if len(ids) == 0 {
		return nil, ErrInstanceLaunchEmpty
	}

	log.Info("launched instances", "ids", ids)
	return ids, nil
}

func (p *Provisioner) waitRunning(ctx context.Context, ids []string) error {
	log := clog.FromContext(ctx)

	timeout := p.RunningTimeout
	if timeout <= 0 {
		timeout = DefaultRunningTimeout
	}

	log.Info("waiting for instances to enter running state", "ids", ids, "timeout", timeout)
	waiter := ec2.NewInstanceRunningWaiter(p.EC2)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: ids,
	}, timeout); err != nil {
		return fmt.Errorf("%w: %w", ErrInstanceWait, err)
	}

	log.Info("instances running", "ids", ids)
	return nil
}

// associateProfile attaches the instance profile, retrying while a freshly
// created profile has not yet propagated through IAM.
func (p *Provisioner) associateProfile(ctx context.Context, instanceID, profileName string) error {
	log := clog.FromContext(ctx)

	backoff := p.ProfileRetryBackoff
	if backoff <= 0 {
		backoff = defaultProfileRetryBackoff
	}
	attempts := max(p.ProfileRetryAttempts, 1)

	input := &ec2.AssociateIamInstanceProfileInput{
		InstanceId: aws.String(instanceID),
		IamInstanceProfile: &types.IamInstanceProfileSpecification{
			Name: aws.String(profileName),
		},
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var out *ec2.AssociateIamInstanceProfileOutput
		out, err = p.EC2.AssociateIamInstanceProfile(ctx, input)
		if err == nil {
			var associationID string
			if out.IamInstanceProfileAssociation != nil {
				associationID = aws.ToString(out.IamInstanceProfileAssociation.AssociationId)
			}
			log.Info("associated instance profile", "id", instanceID, "profile_name", profileName, "association_id", associationID)
			return nil
		}
		if !isProfileNotReady(err) || attempt == attempts {
			break
		}

		log.Debug("instance profile not ready, retrying", "attempt", attempt, "backoff", backoff)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrProfileAssociate, ctx.Err())
		case <-time.After(backoff):
			backoff = min(backoff*2, 30*time.Second)
		}
	}
	return fmt.Errorf("%w: %w", ErrProfileAssociate, err)
}

func isProfileNotReady(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != codeInvalidParameter {
		return false
	}
	msg := strings.ToLower(apiErr.ErrorMessage())
	return strings.Contains(msg, "instance profile") || strings.Contains(msg, "iaminstanceprofile")
}
