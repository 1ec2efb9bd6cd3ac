package secureec2

import "fmt"

// AccessURL returns the console URL an operator opens to connect to
// instanceID.
func AccessURL(mode AccessMode, instanceID, region string) string {
	if mode == AccessBroker {
		return fmt.Sprintf("https://%s.console.aws.amazon.com/systems-manager/session-manager/%s?region=%s", region, instanceID, region)
	}
	return fmt.Sprintf("https://%s.console.aws.amazon.com/ec2/home?region=%s#ConnectToInstance:instanceId=%s", region, region, instanceID)
}

// AccessURL returns the connection URL of the instance's first ID.
func (i Instance) AccessURL(region string) string {
	return AccessURL(i.AccessMode, i.ID, region)
}
