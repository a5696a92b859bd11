package ratelimit

import "strings"

// UnknownClient is the shared bucket for callers with no usable address.
const UnknownClient = "unknown"

// ClientIdentifier picks the client address: first X-Forwarded-For hop,
// then X-Real-IP, then the direct connection address.
func ClientIdentifier(forwardedFor, realIP, remoteAddr string) string {
	if forwardedFor != "" {
		if first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0]); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(realIP); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(remoteAddr); ip != "" {
		return ip
	}
	return UnknownClient
}

// Key combines an action tag with a client so actions never share a budget.
func Key(action, client string) string {
	return action + ":" + client
}
