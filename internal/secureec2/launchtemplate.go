package secureec2

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/avishayil/secure-ec2/internal/environment"
	"github.com/avishayil/secure-ec2/internal/o11y"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// versionDefault selects a template's default version.
	versionDefault = "$Default"

	defaultRootDevice = "/dev/xvda"
	rootVolumeSizeGiB = 30
)

// LaunchTemplate is the readable state of a template's default version.
type LaunchTemplate struct {
	ID      string
	Name    string
	Version int64

	ImageID         string
	SubnetID        string
	SecurityGroupID string
}

// TemplateName returns the deterministic template name for a user and OS
// family. Template names reject spaces, so they become dashes.
func TemplateName(username string, os environment.OSFamily) string {
	return strings.ReplaceAll(fmt.Sprintf("%s-secure_ec2-%s-tpl", username, os), " ", "-")
}

// InstanceName returns the Name tag given to launched instances.
func InstanceName(username string) string {
	return username + "-instance"
}

// MaterializeTemplate resolves the image, network and security group for os
// and writes them into the user's launch template. An existing template gets
// a new version which becomes the default.
func (p *Provisioner) MaterializeTemplate(ctx context.Context, os environment.OSFamily) (tpl LaunchTemplate, err error) {
	name := TemplateName(p.Username, os)
	ctx, span := p.startSpan(ctx, "MaterializeTemplate",
		attribute.String(o11y.AttrOS, os.String()),
		attribute.String(o11y.AttrTemplate, name),
	)
	defer func() { endSpan(span, err) }()

	log := clog.FromContext(ctx)

	img, err := p.LatestImage(ctx, os)
	if err != nil {
		return LaunchTemplate{}, err
	}
	network, err := p.Network(ctx)
	if err != nil {
		return LaunchTemplate{}, err
	}
	sg, err := p.EnsureSecurityGroup(ctx, network.VPCID, os)
	if err != nil {
		return LaunchTemplate{}, err
	}

	tpl = LaunchTemplate{
		Name:            name,
		ImageID:         img.ID,
		SubnetID:        network.SubnetID,
		SecurityGroupID: sg.ID,
	}
	data := p.launchTemplateData(img, network, sg)

	log.Info("creating launch template", "name", name)
	out, err := p.EC2.CreateLaunchTemplate(ctx, &ec2.CreateLaunchTemplateInput{
		LaunchTemplateName: aws.String(name),
		LaunchTemplateData: data,
		TagSpecifications:  tagSpecification(types.ResourceTypeLaunchTemplate, name, p.Username),
	})
	switch {
	case err == nil:
		if lt := out.LaunchTemplate; lt != nil {
			tpl.ID = aws.ToString(lt.LaunchTemplateId)
			tpl.Version = aws.ToInt64(lt.DefaultVersionNumber)
		}
		log.Info("created launch template", "id", tpl.ID, "version", tpl.Version)
		return tpl, nil
	case IsConflict(err):
		log.Info("launch template exists, adding a version", "name", name)
	default:
		return LaunchTemplate{}, fmt.Errorf("%w: %w", ErrLaunchTemplate, err)
	}

	vout, err := p.EC2.CreateLaunchTemplateVersion(ctx, &ec2.CreateLaunchTemplateVersionInput{
		LaunchTemplateName: aws.String(name),
		LaunchTemplateData: data,
		VersionDescription: aws.String(img.Name),
	})
	if err != nil {
		return LaunchTemplate{}, fmt.Errorf("%w: %w", ErrLaunchTemplate, err)
	}
	if v := vout.LaunchTemplateVersion; v != nil {
		tpl.ID = aws.ToString(v.LaunchTemplateId)
		tpl.Version = aws.ToInt64(v.VersionNumber)
	}

	_, err = p.EC2.ModifyLaunchTemplate(ctx, &ec2.ModifyLaunchTemplateInput{
		LaunchTemplateName: aws.String(name),
		DefaultVersion:     aws.String(strconv.FormatInt(tpl.Version, 10)),
	})
	if err != nil {
		return LaunchTemplate{}, fmt.Errorf("%w: %w", ErrLaunchTemplate, err)
	}

	log.Info("promoted launch template version", "id", tpl.ID, "version", tpl.Version)
	return tpl, nil
}

func (p *Provisioner) launchTemplateData(img Image, network NetworkTarget, sg SecurityGroup) *types.RequestLaunchTemplateData {
	rootDevice := img.RootDeviceName
	if rootDevice == "" {
		rootDevice = defaultRootDevice
	}

	return &types.RequestLaunchTemplateData{
		ImageId: aws.String(img.ID),
		BlockDeviceMappings: []types.LaunchTemplateBlockDeviceMappingRequest{{
			DeviceName: aws.String(rootDevice),
			Ebs: &types.LaunchTemplateEbsBlockDeviceRequest{
				Encrypted:           aws.Bool(true),
				DeleteOnTermination: aws.Bool(true),
				VolumeSize:          aws.Int32(rootVolumeSizeGiB),
				VolumeType:          types.VolumeTypeGp2,
			},
		}},
		NetworkInterfaces: []types.LaunchTemplateInstanceNetworkInterfaceSpecificationRequest{{
			DeviceIndex:              aws.Int32(0),
			AssociatePublicIpAddress: aws.Bool(true),
			SubnetId:                 aws.String(network.SubnetID),
			Groups:                   []string{sg.ID},
		}},
		Monitoring: &types.LaunchTemplatesMonitoringRequest{
			Enabled: aws.Bool(false),
		},
		MetadataOptions: p.Metadata.options(),
		TagSpecifications: []types.LaunchTemplateTagSpecificationRequest{{
			ResourceType: types.ResourceTypeInstance,
			Tags:         tags(InstanceName(p.Username), p.Username),
		}},
	}
}

// LatestTemplate reads back the default version of the user's template for
// os.
func (p *Provisioner) LatestTemplate(ctx context.Context, os environment.OSFamily) (tpl LaunchTemplate, err error) {
	name := TemplateName(p.Username, os)
	ctx, span := p.startSpan(ctx, "LatestTemplate",
		attribute.String(o11y.AttrOS, os.String()),
		attribute.String(o11y.AttrTemplate, name),
	)
	defer func() { endSpan(span, err) }()

	log := clog.FromContext(ctx)

	out, err := p.EC2.DescribeLaunchTemplates(ctx, &ec2.DescribeLaunchTemplatesInput{
		LaunchTemplateNames: []string{name},
	})
	if code := errorCode(err); code == codeTemplateNotFound || code == codeTemplateIDNotFound {
		return LaunchTemplate{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	if err != nil {
		return LaunchTemplate{}, fmt.Errorf("%w: %w", ErrTemplateRead, err)
	}
	if len(out.LaunchTemplates) == 0 {
		return LaunchTemplate{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	lt := out.LaunchTemplates[0]
	tpl = LaunchTemplate{
		ID:      aws.ToString(lt.LaunchTemplateId),
		Name:    aws.ToString(lt.LaunchTemplateName),
		Version: aws.ToInt64(lt.DefaultVersionNumber),
	}

	vout, err := p.EC2.DescribeLaunchTemplateVersions(ctx, &ec2.DescribeLaunchTemplateVersionsInput{
		LaunchTemplateName: aws.String(name),
		Versions:           []string{versionDefault},
	})
	if err != nil {
		return LaunchTemplate{}, fmt.Errorf("%w: %w", ErrTemplateRead, err)
	}
	if len(vout.LaunchTemplateVersions) == 0 {
		return LaunchTemplate{}, fmt.Errorf("%w: %s has no default version", ErrTemplateNotFound, name)
	}

	version := vout.LaunchTemplateVersions[0]
	if version.VersionNumber != nil {
		tpl.Version = *version.VersionNumber
	}
	if data := version.LaunchTemplateData; data != nil {
		tpl.ImageID = aws.ToString(data.ImageId)
		if len(data.NetworkInterfaces) > 0 {
			nic := data.NetworkInterfaces[0]
			tpl.SubnetID = aws.ToString(nic.SubnetId)
			if len(nic.Groups) > 0 {
				tpl.SecurityGroupID = nic.Groups[0]
			}
		}
	}

	log.Info("found launch template", "id", tpl.ID, "name", tpl.Name, "version", tpl.Version, "image_id", tpl.ImageID)
	return tpl, nil
}
