package secureec2

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// MetadataMode selects how instances may reach the instance metadata service.
type MetadataMode string

const (
	// MetadataV2 requires session tokens (IMDSv2 only).
	MetadataV2 MetadataMode = "v2"
	// MetadataV1AndV2 accepts token and tokenless requests.
	MetadataV1AndV2 MetadataMode = "v1-and-v2"
	// MetadataDisabled turns the endpoint off.
	MetadataDisabled MetadataMode = "disabled"
)

var MetadataModes = []MetadataMode{MetadataV2, MetadataV1AndV2, MetadataDisabled}

var ErrUnknownMetadataMode = fmt.Errorf("%w: unknown metadata mode", ErrInvalidInput)

func ParseMetadataMode(s string) (MetadataMode, error) {
	m := MetadataMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MetadataV2, MetadataV1AndV2, MetadataDisabled:
		return m, nil
	case "":
		return MetadataV2, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetadataMode, s)
}

func (m MetadataMode) options() *types.LaunchTemplateInstanceMetadataOptionsRequest {
	switch m {
	case MetadataDisabled:
		return &types.LaunchTemplateInstanceMetadataOptionsRequest{
			HttpEndpoint: types.LaunchTemplateInstanceMetadataEndpointStateDisabled,
		}
	case MetadataV1AndV2:
		return &types.LaunchTemplateInstanceMetadataOptionsRequest{
			HttpEndpoint: types.LaunchTemplateInstanceMetadataEndpointStateEnabled,
			HttpTokens:   types.LaunchTemplateHttpTokensStateOptional,
		}
	default:
		return &types.LaunchTemplateInstanceMetadataOptionsRequest{
			HttpEndpoint:            types.LaunchTemplateInstanceMetadataEndpointStateEnabled,
			HttpTokens:              types.LaunchTemplateHttpTokensStateRequired,
			HttpPutResponseHopLimit: aws.Int32(1),
		}
	}
}
