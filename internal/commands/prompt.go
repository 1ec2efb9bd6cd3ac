package commands

import (
	"context"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/avishayil/secure-ec2/internal/environment"
	"github.com/avishayil/secure-ec2/internal/secureec2"
	"github.com/chainguard-dev/clog"
	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

var ErrMissingInput = fmt.Errorf("missing required input")

const defaultInstanceType = "t2.micro"

// stdinIsTerminal reports whether prompts can be shown.
var stdinIsTerminal = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// keyPairLister returns the key pairs offered in the key pair prompt.
type keyPairLister func(ctx context.Context) ([]string, error)

// complete prompts for whatever st still needs. Without a terminal a missing
// input is an error naming the flags to pass.
func (o *Options) complete(ctx context.Context, st stage, interactive bool, listKeyPairs keyPairLister) error {
	missing := o.missing(st)
	if len(missing) == 0 {
		return nil
	}
	if !interactive {
		return fmt.Errorf("%w: pass %s", ErrMissingInput, strings.Join(missing, ", "))
	}

	var fields []huh.Field
	if o.OS == "" {
		fields = append(fields, huh.NewSelect[string]().
			Title("Operating System").
			Description("Selects the image and the port opened to your IP").
			Options(osOptions()...).
			Value(&o.OS))
	}

	countInput := "1"
	if st&stageLaunch != 0 {
		if o.Count == 0 {
			fields = append(fields, huh.NewInput().
				Title("Instance Count").
				Value(&countInput).
				Validate(validateCount))
		}
		if o.KeyPair == "" {
			fields = append(fields, keyPairField(ctx, listKeyPairs, &o.KeyPair))
		}
		if o.InstanceType == "" {
			o.InstanceType = defaultInstanceType
			fields = append(fields, huh.NewInput().
				Title("Instance Type").
				Placeholder(defaultInstanceType).
				Value(&o.InstanceType).
				Validate(validateRequired("instance type")))
		}
	}

	if err := huh.NewForm(huh.NewGroup(fields...).Title("secure-ec2")).RunWithContext(ctx); err != nil {
		return err
	}

	if st&stageLaunch != 0 && o.Count == 0 {
		n, err := strconv.Atoi(strings.TrimSpace(countInput))
		if err != nil {
			return fmt.Errorf("%w: %w", secureec2.ErrInvalidCount, err)
		}
		o.Count = n
	}
	o.applyDefaults()
	return nil
}

func osOptions() []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(environment.OSFamilies))
	for _, f := range environment.OSFamilies {
		opts = append(opts, huh.NewOption(f.String(), f.String()))
	}
	return opts
}

// keyPairField offers the region's key pairs plus NoKeyPair, falling back to
// free text when they cannot be listed.
func keyPairField(ctx context.Context, list keyPairLister, value *string) huh.Field {
	var names []string
	if list != nil {
		var err error
		names, err = list(ctx)
		if err != nil {
			clog.FromContext(ctx).Warn("failed to list key pairs", "error", err)
		}
	}

	if len(names) == 0 {
		*value = secureec2.NoKeyPair
		return huh.NewInput().
			Title("Key Pair").
			Description(fmt.Sprintf("Key pair name, or %s for Session Manager access", secureec2.NoKeyPair)).
			Value(value).
			Validate(validateRequired("key pair"))
	}

	return huh.NewSelect[string]().
		Title("Key Pair").
		Description(fmt.Sprintf("%s launches without a key and grants Session Manager access", secureec2.NoKeyPair)).
		Options(huh.NewOptions(slices.Concat([]string{secureec2.NoKeyPair}, names)...)...).
		Value(value)
}

func validateCount(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > math.MaxInt32 {
		return fmt.Errorf("enter a whole number between 1 and %d", math.MaxInt32)
	}
	return nil
}

func validateRequired(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}
