// Package endpoint parses and validates device address specifications.
package endpoint

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPort is the TCP/UDP port every TP-Link smart device listens on.
const DefaultPort = 9999

// hostnamePattern accepts RFC 1123 host names (labels of letters, digits and hyphens).
var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*\.?$`)

var numericPattern = regexp.MustCompile(`^[0-9.]+$`)

// Endpoint is the network address of one device
type Endpoint struct {
	Host     string // Hostname or IP address (IPv6 without brackets)
	Port     int    // Device port number
	Original string // Address specification as given by the user
}

// String returns the dialable "host:port" form of the endpoint
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// FromUDPAddr builds an endpoint from the source address of a datagram
func FromUDPAddr(addr *net.UDPAddr) Endpoint {
	ep := Endpoint{Host: addr.IP.String(), Port: addr.Port}
	ep.Original = ep.String()
	return ep
}

// Parse parses a single address specification in the format "host", "host:port",
// "[ipv6]:port" or a bare IPv6 address. A missing port defaults to DefaultPort.
func Parse(spec string) (Endpoint, error) {
	ep := Endpoint{
		Original: spec,
		Port:     DefaultPort,
	}

	spec = strings.TrimSpace(spec)
	if spec == "" {
		return ep, fmt.Errorf("empty address")
	}

	var host, portStr string

	switch {
	case strings.HasPrefix(spec, "["):
		// IPv6 format: [::1]:9999 or [::1]
		closeBracket := strings.Index(spec, "]")
		if closeBracket == -1 {
			return ep, fmt.Errorf("invalid IPv6 address %q: missing closing bracket", spec)
		}
		host = spec[1:closeBracket]
		remainder := spec[closeBracket+1:]
		if remainder != "" {
			if !strings.HasPrefix(remainder, ":") {
				return ep, fmt.Errorf("unexpected characters after IPv6 address in %q", spec)
			}
			portStr = remainder[1:]
			if portStr == "" {
				return ep, fmt.Errorf("missing port after ':' in %q", spec)
			}
		}
		if net.ParseIP(host) == nil {
			return ep, fmt.Errorf("invalid IPv6 address %q", host)
		}
	case strings.Count(spec, ":") > 1:
		// Unbracketed IPv6 can't carry a port.
		if net.ParseIP(spec) == nil {
			return ep, fmt.Errorf("invalid IPv6 address %q (use [addr]:port to give a port)", spec)
		}
		host = spec
	case strings.Contains(spec, ":"):
		var err error
		host, portStr, err = net.SplitHostPort(spec)
		if err != nil {
			return ep, fmt.Errorf("invalid address %q: %w", spec, err)
		}
		if portStr == "" {
			return ep, fmt.Errorf("missing port after ':' in %q", spec)
		}
	default:
		host = spec
	}

	ep.Host = host

	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return ep, fmt.Errorf("invalid port number %q", portStr)
		}
		if port < 1 || port > 65535 {
			return ep, fmt.Errorf("port number %d out of valid range (1-65535)", port)
		}
		ep.Port = port
	}

	if err := Validate(ep); err != nil {
		return ep, err
	}

	return ep, nil
}

// Validate checks that an endpoint names a usable host and port
func Validate(ep Endpoint) error {
	if ep.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if ep.Port < 1 || ep.Port > 65535 {
		return fmt.Errorf("port number %d out of valid range (1-65535)", ep.Port)
	}
	if net.ParseIP(ep.Host) != nil {
		return nil
	}
	if numericPattern.MatchString(ep.Host) {
		return fmt.Errorf("invalid IP address %q", ep.Host)
	}
	if !hostnamePattern.MatchString(ep.Host) {
		return fmt.Errorf("invalid host name %q", ep.Host)
	}
	return nil
}

// ParseAll parses every specification. It returns no endpoints at all if any one of
// them is invalid.
func ParseAll(specs []string) ([]Endpoint, error) {
	endpoints := make([]Endpoint, 0, len(specs))
	for _, spec := range specs {
		ep, err := Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("not a valid address: %s: %w", spec, err)
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}
