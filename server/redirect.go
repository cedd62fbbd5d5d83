// server/redirect.go
package server

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// httpRedirectHandler redirects any HTTP request to HTTPS preserving host and
// path. Hosts and request URIs carrying control characters are rejected so
// the Location header cannot be split.
func httpRedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqURI := r.URL.RequestURI()
		if !isValidHost(r.Host) || hasControlChars(reqURI) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://"+r.Host+reqURI, http.StatusMovedPermanently)
	})
}

func hasControlChars(s string) bool {
	for _, c := range s {
		if c < 0x20 || c == 0x7f {
			return true
		}
	}
	return false
}

// isValidHost reports whether host (optionally host:port, IPv6 in brackets)
// is safe to echo into a redirect target.
func isValidHost(host string) bool {
	if host == "" || strings.Contains(host, "://") || strings.HasPrefix(host, "/") {
		return false
	}

	// Use net.SplitHostPort for robust parsing of host:port and IPv6 addresses
	// like "[::1]:8080". If it fails, the host might not have a port.
	hostPart, portStr, err := net.SplitHostPort(host)
	if err != nil {
		hostPart = host
	} else if portStr != "" {
		port, perr := strconv.Atoi(portStr)
		if perr != nil || port <= 0 || port > 65535 {
			return false
		}
	}
	// Reject empty host part
	if hostPart == "" {
		return false
	}

	// Strip brackets from IPv6 addresses for validation
	if strings.HasPrefix(hostPart, "[") && strings.HasSuffix(hostPart, "]") {
		ip := hostPart[1 : len(hostPart)-1]
		// link-local addresses may carry a zone ID (e.g., "fe80::1%eth0")
		if i := strings.IndexByte(ip, '%'); i != -1 {
			ip = ip[:i]
		}
		if net.ParseIP(ip) == nil {
			return false
		}
	}

	// Reject any control characters or whitespace that could enable injection
	return !hasControlChars(hostPart) && !strings.ContainsAny(hostPart, " \t")
}
