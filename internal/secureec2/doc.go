// Package secureec2 provisions EC2 instances that are reachable only from the
// caller's current public IP address, or only through Session Manager.
//
// # Overview
//
// Provisioning happens in two phases which may run in separate invocations.
//
// # Phase: Config
//
// MaterializeTemplate resolves everything a launch needs and writes it into a
// per-user, per-OS launch template:
//  1. Image - the newest Amazon-owned image matching the OS family's name filter
//  2. Network - the region's default VPC and one of its subnets
//  3. Security Group - "<username>-sg", allowing the OS connection port (22 for
//     Linux, 3389 for Windows) from the caller's public IP only
//  4. Launch Template - "<username>-secure_ec2-<os>-tpl". When it already exists
//     a new version is written and promoted to the default.
//
// Every step is idempotent: an existing group, rule or template is reused.
//
// # Phase: Launch
//
// Provision reads the template's default version and launches instances from
// it. With a key pair the instances are reachable with that key through the
// security group. With NoKeyPair no key is attached; once the instances are
// running they receive the SessionManagerInstanceProfile instance profile,
// created on demand by EnsureAccessRole.
//
// AccessURL renders the console URL an operator uses to connect.
//
// # Failure Model
//
// Nothing is rolled back. An instance launched before a failed profile
// association stays running without the profile. Concurrent runs for the same
// user race on the shared group and template names.
package secureec2
