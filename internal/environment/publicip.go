package environment

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultIPEndpoint answers a GET with the caller's public address as plain
// text.
const DefaultIPEndpoint = "https://checkip.amazonaws.com"

var ErrPublicIPLookup = fmt.Errorf("failed to resolve public IP address")

// IPResolver looks up the public address of the machine running the tool.
//
// Security group ingress rules are scoped to this address, so the lookup is
// done once per reconciliation and never cached across runs.
type IPResolver struct {
	// Endpoint defaults to DefaultIPEndpoint.
	Endpoint string
	// Client defaults to a client with a 10s timeout.
	Client *http.Client
}

// PublicIP performs a single lookup. Failures are returned wrapped in
// ErrPublicIPLookup and are not retried.
func (r IPResolver) PublicIP(ctx context.Context) (string, error) {
	endpoint := r.Endpoint
	if endpoint == "" {
		endpoint = DefaultIPEndpoint
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublicIPLookup, err)
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublicIPLookup, err)
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: received HTTP status code %d", ErrPublicIPLookup, res.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, 256))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublicIPLookup, err)
	}
	addr := strings.TrimSpace(string(data))
	if net.ParseIP(addr) == nil {
		return "", fmt.Errorf("%w: %q is not an IP address", ErrPublicIPLookup, addr)
	}
	return addr, nil
}

// PublicIP resolves the public address using the default endpoint.
func PublicIP(ctx context.Context) (string, error) {
	return IPResolver{}.PublicIP(ctx)
}

// SingleAddrCIDR returns the /32 block matching exactly addr. Security group
// IpRanges only take IPv4, so IPv6 addresses are rejected.
func SingleAddrCIDR(addr string) (string, error) {
	ip := net.ParseIP(addr)
	switch {
	case ip == nil:
		return "", fmt.Errorf("%w: %q is not an IP address", ErrPublicIPLookup, addr)
	case ip.To4() == nil:
		return "", fmt.Errorf("%w: %q is not an IPv4 address", ErrPublicIPLookup, addr)
	default:
		return ip.To4().String() + "/32", nil
	}
}
