package awsclient

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

const (
	ServiceEC2 = "ec2"
	ServiceIAM = "iam"
	ServiceSTS = "sts"
)

var ErrRegionUnavailable = fmt.Errorf("region is not available for service")

// EnvExtraRegions holds a comma separated list of regions accepted for every
// regional service in addition to the built-in table.
const EnvExtraRegions = "SECURE_EC2_EXTRA_REGIONS"

// regionalEndpoints are the regions with a published endpoint for both EC2 and
// STS, across the commercial, GovCloud and China partitions.
//
// The table is maintained by hand and must be refreshed when AWS opens a
// region. Until then EnvExtraRegions admits the new region.
var regionalEndpoints = []string{
	"af-south-1",
	"ap-east-1",
	"ap-east-2",
	"ap-northeast-1",
	"ap-northeast-2",
	"ap-northeast-3",
	"ap-south-1",
	"ap-south-2",
	"ap-southeast-1",
	"ap-southeast-2",
	"ap-southeast-3",
	"ap-southeast-4",
	"ap-southeast-5",
	"ap-southeast-6",
	"ap-southeast-7",
	"ca-central-1",
	"ca-west-1",
	"cn-north-1",
	"cn-northwest-1",
	"eu-central-1",
	"eu-central-2",
	"eu-north-1",
	"eu-south-1",
	"eu-south-2",
	"eu-west-1",
	"eu-west-2",
	"eu-west-3",
	"il-central-1",
	"me-central-1",
	"me-south-1",
	"mx-central-1",
	"sa-east-1",
	"us-east-1",
	"us-east-2",
	"us-gov-east-1",
	"us-gov-west-1",
	"us-west-1",
	"us-west-2",
}

var serviceRegions = map[string][]string{
	ServiceEC2: regionalEndpoints,
	ServiceSTS: regionalEndpoints,
}

// globalServices are served from a single partition endpoint; the configured
// region only selects the signing region.
var globalServices = map[string]bool{
	ServiceIAM: true,
}

// Regions returns the published regions of service, or nil for global and
// unknown services.
func Regions(service string) []string {
	return slices.Clone(serviceRegions[service])
}

// ValidateRegion reports ErrRegionUnavailable when service has no endpoint in
// region.
func ValidateRegion(service, region string) error {
	if globalServices[service] {
		return nil
	}
	regions, ok := serviceRegions[service]
	if !ok {
		return fmt.Errorf("%w: unknown service %q", ErrRegionUnavailable, service)
	}
	if !slices.Contains(regions, region) && !slices.Contains(extraRegions(), region) {
		return fmt.Errorf("%w: %s is not offered in %q", ErrRegionUnavailable, service, region)
	}
	return nil
}

func extraRegions() []string {
	var regions []string
	for _, r := range strings.Split(os.Getenv(EnvExtraRegions), ",") {
		if r = strings.TrimSpace(r); r != "" {
			regions = append(regions, r)
		}
	}
	return regions
}
