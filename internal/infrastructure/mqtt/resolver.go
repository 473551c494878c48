package mqtt

import (
	"fmt"
	"net"
)

// resolveBrokerAddr checks that the configured broker host is reachable by
// name before a connect attempt. Literal IPs pass through untouched;
// hostnames are resolved freshly on every call, so a broker that moved
// (container restart, new DHCP lease) is picked up on the next attempt
// instead of failing until the service restarts.
//
// The returned address is informational: the dial itself goes through the OS
// resolver again using the configured hostname, which keeps TLS certificate
// verification working. This lookup exists to surface name-resolution
// problems as a distinct, retryable error rather than a generic dial timeout.
func resolveBrokerAddr(host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("%w: empty broker host", ErrResolveFailed)
	}

	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrResolveFailed, host, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("%w: %q: no addresses", ErrResolveFailed, host)
	}

	return addrs[0], nil
}
