// Package health provides the checks behind thunder.Client.Health.
//
// Checks return a HealthStatus rather than an error so several can be
// aggregated with Combine:
//
//	status := health.Combine(
//		health.NetworkCheck(ctx, "192.168.1.10", 80),
//		health.RegistryCheck(registry.Names()),
//	)
//	if status.IsUnhealthy() {
//		log.Println(status.Message)
//	}
package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// NetworkCheck verifies TCP connectivity to the device's JSON-RPC port. A
// nil ctx gets a five second timeout.
func NetworkCheck(ctx context.Context, host string, port int) HealthStatus {
	if host == "" {
		return Unhealthy(CheckDevice, "host cannot be empty", nil)
	}
	if port <= 0 || port > 65535 {
		return Unhealthy(CheckDevice,
			fmt.Sprintf("invalid port number: %d", port),
			map[string]any{DetailPort: port},
		)
	}

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	details := map[string]any{
		DetailAddress: address,
		DetailHost:    host,
		DetailPort:    port,
	}

	started := time.Now()
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		details[DetailError] = err.Error()
		return Unhealthy(CheckDevice, fmt.Sprintf("failed to connect to %s", address), details)
	}
	conn.Close()
	details[DetailLatency] = time.Since(started).Milliseconds()

	return Healthy(CheckDevice, fmt.Sprintf("connected to %s", address), details)
}

// RegistryCheck reports the registered plugin names. An empty registry is
// degraded: calls can only fail until something is registered.
func RegistryCheck(plugins []string) HealthStatus {
	if len(plugins) == 0 {
		return Degraded(CheckRegistry, "no plugins registered", map[string]any{DetailPlugins: []string{}})
	}
	return Healthy(CheckRegistry,
		fmt.Sprintf("%d plugin(s) registered", len(plugins)),
		map[string]any{DetailPlugins: plugins},
	)
}

// Combine aggregates multiple checks into one status. Any unhealthy check
// makes the result unhealthy; otherwise any degraded check makes it
// degraded. Failing checks are listed by their Summary.
func Combine(checks ...HealthStatus) HealthStatus {
	if len(checks) == 0 {
		return Healthy(CheckCombined, "no checks provided", nil)
	}

	var unhealthy, degraded []string
	var healthy int

	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, check.Summary())
		case StatusDegraded:
			degraded = append(degraded, check.Summary())
		case StatusHealthy:
			healthy++
		}
	}

	if len(unhealthy) > 0 {
		return Unhealthy(CheckCombined,
			fmt.Sprintf("%d check(s) failed", len(unhealthy)),
			map[string]any{
				"total":         len(checks),
				"unhealthy":     len(unhealthy),
				"degraded":      len(degraded),
				"healthy":       healthy,
				"failed_checks": unhealthy,
			},
		)
	}

	if len(degraded) > 0 {
		return Degraded(CheckCombined,
			fmt.Sprintf("%d check(s) degraded", len(degraded)),
			map[string]any{
				"total":           len(checks),
				"degraded":        len(degraded),
				"healthy":         healthy,
				"degraded_checks": degraded,
			},
		)
	}

	return Healthy(CheckCombined, fmt.Sprintf("all %d check(s) passed", len(checks)), map[string]any{"total": len(checks)})
}
