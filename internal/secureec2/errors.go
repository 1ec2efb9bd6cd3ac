package secureec2

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// Root error kinds. Every error returned by this package wraps exactly one of
// them.
var (
	ErrResourceNotFound = fmt.Errorf("required resource not found")
	ErrProviderConflict = fmt.Errorf("resource already exists")
	ErrProvider         = fmt.Errorf("cloud provider request failed")
	ErrInvalidInput     = fmt.Errorf("invalid input")
)

var (
	ErrNoDefaultVPC     = fmt.Errorf("%w: no default VPC in region", ErrResourceNotFound)
	ErrNoSubnet         = fmt.Errorf("%w: no subnet in VPC", ErrResourceNotFound)
	ErrImageNotFound    = fmt.Errorf("%w: no image matches the filter", ErrResourceNotFound)
	ErrTemplateNotFound = fmt.Errorf("%w: launch template does not exist, run `secure-ec2 config` first", ErrResourceNotFound)
)

var (
	ErrCredentials      = fmt.Errorf("%w: failed to resolve caller identity", ErrProvider)
	ErrNetwork          = fmt.Errorf("%w: failed to locate network", ErrProvider)
	ErrSecurityGroup    = fmt.Errorf("%w: failed to reconcile security group", ErrProvider)
	ErrImage            = fmt.Errorf("%w: failed to describe images", ErrProvider)
	ErrLaunchTemplate   = fmt.Errorf("%w: failed to write launch template", ErrProvider)
	ErrTemplateRead     = fmt.Errorf("%w: failed to read launch template", ErrProvider)
	ErrInstanceLaunch   = fmt.Errorf("%w: failed to launch instances", ErrProvider)
	ErrInstanceWait     = fmt.Errorf("%w: failed waiting for instances to run", ErrProvider)
	ErrAccessRole       = fmt.Errorf("%w: failed to ensure access role", ErrProvider)
	ErrProfileAssociate = fmt.Errorf("%w: failed to associate instance profile", ErrProvider)
	ErrKeyPairs         = fmt.Errorf("%w: failed to list key pairs", ErrProvider)
)

// AWS error codes this package reacts to.
const (
	codeGroupNotFound      = "InvalidGroup.NotFound"
	codePermissionExists   = "InvalidPermission.Duplicate"
	codeGroupExists        = "InvalidGroup.Duplicate"
	codeTemplateExists     = "InvalidLaunchTemplateName.AlreadyExistsException"
	codeTemplateNotFound   = "InvalidLaunchTemplateName.NotFoundException"
	codeTemplateIDNotFound = "InvalidLaunchTemplateId.NotFound"
	codeEntityExists       = "EntityAlreadyExists"
	codeInvalidParameter   = "InvalidParameterValue"
)

var conflictCodes = map[string]bool{
	codePermissionExists: true,
	codeGroupExists:      true,
	codeTemplateExists:   true,
	codeEntityExists:     true,
}

// errorCode returns the AWS error code carried by err, or "".
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsConflict reports whether err signals that the resource being created
// already exists.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrProviderConflict) || conflictCodes[errorCode(err)]
}

// IsNotFound reports whether err is one of the missing-prerequisite errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound)
}
