package environment

import (
	"fmt"
	"strings"
)

// OSFamily selects the base image and the remote access port of an instance.
type OSFamily string

const (
	Linux   OSFamily = "linux"
	Windows OSFamily = "windows"
)

const (
	PortSSH int32 = 22
	PortRDP int32 = 3389
)

const (
	imageFilterWindows = "Windows_Server-2019-English-Full-Base-*"
	imageFilterLinux   = "amzn2-ami-hvm-2.0*"
)

var ErrUnknownOSFamily = fmt.Errorf("unknown operating system family")

// OSFamilies lists the families accepted by ParseOSFamily.
var OSFamilies = []OSFamily{Linux, Windows}

// ParseOSFamily accepts "linux" or "windows" in any letter case.
func ParseOSFamily(s string) (OSFamily, error) {
	switch f := OSFamily(strings.ToLower(strings.TrimSpace(s))); f {
	case Linux, Windows:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q (expected linux or windows)", ErrUnknownOSFamily, s)
	}
}

func (f OSFamily) normalized() OSFamily {
	return OSFamily(strings.ToLower(string(f)))
}

// ConnectionPort is the port opened in the security group: RDP for Windows,
// SSH for everything else.
func ConnectionPort(f OSFamily) int32 {
	if f.normalized() == Windows {
		return PortRDP
	}
	return PortSSH
}

// ImageFilter is the image name pattern for the family. Unrecognized families
// fall back to Linux, matching ConnectionPort.
func ImageFilter(f OSFamily) string {
	if f.normalized() == Windows {
		return imageFilterWindows
	}
	return imageFilterLinux
}

func (f OSFamily) String() string {
	return string(f)
}
