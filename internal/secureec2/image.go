package secureec2

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/avishayil/secure-ec2/internal/environment"
	"github.com/avishayil/secure-ec2/internal/o11y"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
)

// Image is a machine image instances boot from.
type Image struct {
	ID             string
	Name           string
	CreationDate   string
	RootDeviceName string
}

// LatestImage returns the most recently created image matching the OS
// family's name filter.
func (p *Provisioner) LatestImage(ctx context.Context, os environment.OSFamily) (img Image, err error) {
	ctx, span := p.startSpan(ctx, "LatestImage", attribute.String(o11y.AttrOS, os.String()))
	defer func() { endSpan(span, err) }()

	log := clog.FromContext(ctx)
	nameFilter := environment.ImageFilter(os)

	owner := p.ImageOwner
	if owner == "" {
		owner = DefaultImageOwner
	}

	out, err := p.EC2.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners:  []string{owner},
		Filters: []types.Filter{filter("name", nameFilter)},
	})
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrImage, err)
	}

	images := newestFirst(out.Images)
	if len(images) == 0 {
		return Image{}, fmt.Errorf("%w: %s owned by %s", ErrImageNotFound, nameFilter, owner)
	}

	newest := images[0]
	img = Image{
		ID:             aws.ToString(newest.ImageId),
		Name:           aws.ToString(newest.Name),
		CreationDate:   aws.ToString(newest.CreationDate),
		RootDeviceName: aws.ToString(newest.RootDeviceName),
	}
	log.Info("resolved image", "id", img.ID, "name", img.Name, "created", img.CreationDate)
	return img, nil
}

// newestFirst sorts by creation date descending. Dates are ISO 8601 strings so
// they order lexically.
func newestFirst(images []types.Image) []types.Image {
	sorted := slices.Clone(images)
	slices.SortStableFunc(sorted, func(a, b types.Image) int {
		return strings.Compare(aws.ToString(b.CreationDate), aws.ToString(a.CreationDate))
	})
	return sorted
}
