package secureec2

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
)

const (
	tagKeyName    = "Name"
	tagKeyOwner   = "Owner"
	tagKeyProject = "Project"

	tagDefaultProject = "secure-ec2"
)

// tags produces the Name and Owner tags plus the project tag every created
// resource carries.
func tags(name, owner string) []types.Tag {
	return []types.Tag{
		{Key: aws.String(tagKeyName), Value: aws.String(name)},
		{Key: aws.String(tagKeyOwner), Value: aws.String(owner)},
		{Key: aws.String(tagKeyProject), Value: aws.String(tagDefaultProject)},
	}
}

func tagSpecification(rt types.ResourceType, name, owner string) []types.TagSpecification {
	return []types.TagSpecification{{
		ResourceType: rt,
		Tags:         tags(name, owner),
	}}
}

func iamTags(name string) []iamtypes.Tag {
	return []iamtypes.Tag{
		{Key: aws.String(tagKeyName), Value: aws.String(name)},
		{Key: aws.String(tagKeyProject), Value: aws.String(tagDefaultProject)},
	}
}

func filter(name string, values ...string) types.Filter {
	return types.Filter{Name: aws.String(name), Values: values}
}
