package commands

import (
	"fmt"
	"math"
	"strings"

	"github.com/avishayil/secure-ec2/internal/environment"
	"github.com/avishayil/secure-ec2/internal/secureec2"
	"github.com/spf13/cobra"
)

// stage marks which halves of the provisioning flow a command runs.
type stage int

const (
	stageConfig stage = 1 << iota
	stageLaunch
)

// Options holds every command input. Zero values mean "not given".
type Options struct {
	OS           string
	Metadata     string
	Count        int
	KeyPair      string
	InstanceType string
	NoClip       bool
}

func (o *Options) addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.OS, "os", "", "operating system family (linux|windows)")
	cmd.Flags().StringVar(&o.Metadata, "imds", "", "instance metadata service mode (v2|v1-and-v2|disabled)")
}

func (o *Options) addLaunchFlags(cmd *cobra.Command, withOS bool) {
	if withOS {
		cmd.Flags().StringVar(&o.OS, "os", "", "operating system family (linux|windows)")
	}
	cmd.Flags().IntVar(&o.Count, "count", 0, "number of instances to launch")
	cmd.Flags().StringVar(&o.KeyPair, "keypair", "", fmt.Sprintf("key pair name, or %q for Session Manager access", secureec2.NoKeyPair))
	cmd.Flags().StringVar(&o.InstanceType, "instance-type", "", "instance type, e.g. t2.micro")
	cmd.Flags().BoolVar(&o.NoClip, "no-clip", false, "do not copy the connection URL to the clipboard")
}

func (o *Options) applyDefaults() {
	if o.Metadata == "" {
		o.Metadata = string(secureec2.MetadataV2)
	}
	o.OS = strings.ToLower(strings.TrimSpace(o.OS))
	o.KeyPair = strings.TrimSpace(o.KeyPair)
	o.InstanceType = strings.TrimSpace(o.InstanceType)
}

// validateGiven checks only the inputs that were provided, so bad flags fail
// before any prompt or cloud call.
func (o *Options) validateGiven() error {
	if o.OS != "" {
		if _, err := environment.ParseOSFamily(o.OS); err != nil {
			return err
		}
	}
	if _, err := secureec2.ParseMetadataMode(o.Metadata); err != nil {
		return err
	}
	if o.Count < 0 || o.Count > math.MaxInt32 {
		return fmt.Errorf("%w: got %d", secureec2.ErrInvalidCount, o.Count)
	}
	return nil
}

// missing lists the flags st still needs.
func (o *Options) missing(st stage) []string {
	var flags []string
	if o.OS == "" {
		flags = append(flags, "--os")
	}
	if st&stageLaunch != 0 {
		if o.Count == 0 {
			flags = append(flags, "--count")
		}
		if o.KeyPair == "" {
			flags = append(flags, "--keypair")
		}
		if o.InstanceType == "" {
			flags = append(flags, "--instance-type")
		}
	}
	return flags
}

func (o *Options) validate(st stage) error {
	if m := o.missing(st); len(m) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingInput, strings.Join(m, ", "))
	}
	return o.validateGiven()
}

func (o *Options) osFamily() environment.OSFamily {
	os, _ := environment.ParseOSFamily(o.OS)
	return os
}

func (o *Options) metadataMode() secureec2.MetadataMode {
	m, _ := secureec2.ParseMetadataMode(o.Metadata)
	return m
}

// preflight rejects bad inputs, and missing ones when there is no terminal to
// prompt on, before any cloud call.
func (o *Options) preflight(st stage, interactive bool) error {
	o.applyDefaults()
	if err := o.validateGiven(); err != nil {
		return err
	}
	if !interactive {
		return o.validate(st)
	}
	return nil
}
