package secureec2

import (
	"context"
	"fmt"

	"github.com/avishayil/secure-ec2/internal/environment"
	"github.com/avishayil/secure-ec2/internal/o11y"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	securityGroupDescription = "secure-ec2 access from the owner's public IP"
	ingressRuleDescription   = "secure-ec2 owner access"
)

// SecurityGroup is the per-user group admitting the connection port from a
// single address.
type SecurityGroup struct {
	ID   string
	Name string
	Port int32
	CIDR string
}

// SecurityGroupName returns the group name owned by username.
func SecurityGroupName(username string) string {
	return username + "-sg"
}

// EnsureSecurityGroup makes sure the user's group exists in vpcID and admits
// the OS connection port from the caller's current public IP. Existing rules
// are never removed.
func (p *Provisioner) EnsureSecurityGroup(ctx context.Context, vpcID string, os environment.OSFamily) (sg SecurityGroup, err error) {
	ctx, span := p.startSpan(ctx, "EnsureSecurityGroup",
		attribute.String(o11y.AttrOS, os.String()),
		attribute.String("vpc_id", vpcID),
	)
	defer func() { endSpan(span, err) }()

	log := clog.FromContext(ctx)

	ip, err := p.PublicIP(ctx)
	if err != nil {
		return SecurityGroup{}, err
	}
	cidr, err := environment.SingleAddrCIDR(ip)
	if err != nil {
		return SecurityGroup{}, err
	}

	sg = SecurityGroup{
		Name: SecurityGroupName(p.Username),
		Port: environment.ConnectionPort(os),
		CIDR: cidr,
	}

	sg.ID, err = p.findSecurityGroup(ctx, vpcID, sg.Name)
	if err != nil {
		return SecurityGroup{}, err
	}

	if sg.ID == "" {
		log.Info("creating security group", "name", sg.Name, "vpc_id", vpcID)
		sg.ID, err = p.createSecurityGroup(ctx, vpcID, sg.Name)
		if err != nil {
			return SecurityGroup{}, err
		}
	} else {
		log.Info("reusing security group", "id", sg.ID, "name", sg.Name)
	}

	if err := p.authorizeIngress(ctx, sg); err != nil {
		return SecurityGroup{}, err
	}
	return sg, nil
}

// findSecurityGroup returns the ID of the group called name in vpcID, or ""
// when there is none.
func (p *Provisioner) findSecurityGroup(ctx context.Context, vpcID, name string) (string, error) {
	out, err := p.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []types.Filter{
			filter("group-name", name),
			filter("vpc-id", vpcID),
		},
	})
	if errorCode(err) == codeGroupNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSecurityGroup, err)
	}
	for _, group := range out.SecurityGroups {
		if aws.ToString(group.GroupName) == name {
			return aws.ToString(group.GroupId), nil
		}
	}
	return "", nil
}

// createSecurityGroup creates the group, or returns the ID of one created
// concurrently under the same name.
func (p *Provisioner) createSecurityGroup(ctx context.Context, vpcID, name string) (string, error) {
	log := clog.FromContext(ctx)

	out, err := p.EC2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(name),
		Description:       aws.String(securityGroupDescription),
		VpcId:             aws.String(vpcID),
		TagSpecifications: tagSpecification(types.ResourceTypeSecurityGroup, name, p.Username),
	})
	if IsConflict(err) {
		id, ferr := p.findSecurityGroup(ctx, vpcID, name)
		if ferr != nil {
			return "", ferr
		}
		if id == "" {
			return "", fmt.Errorf("%w: %w", ErrSecurityGroup, err)
		}
		log.Info("security group appeared concurrently, reusing", "id", id, "name", name)
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSecurityGroup, err)
	}

	id := aws.ToString(out.GroupId)
	log.Info("created security group", "id", id)
	return id, nil
}

func (p *Provisioner) authorizeIngress(ctx context.Context, sg SecurityGroup) error {
	log := clog.FromContext(ctx)

	_, err := p.EC2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: aws.String(sg.ID),
		IpPermissions: []types.IpPermission{{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int32(sg.Port),
			ToPort:     aws.Int32(sg.Port),
			IpRanges: []types.IpRange{{
				CidrIp:      aws.String(sg.CIDR),
				Description: aws.String(ingressRuleDescription),
			}},
		}},
	})
	if IsConflict(err) {
		log.Info("ingress already authorized", "id", sg.ID, "from", sg.CIDR, "port", sg.Port)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSecurityGroup, err)
	}

	log.Info("authorized ingress", "id", sg.ID, "from", sg.CIDR, "port", sg.Port)
	return nil
}
