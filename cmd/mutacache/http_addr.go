package main

import (
	"net"
	"strings"
)

// apiURL converts an HTTP listen address into the base URL of the API.
// Examples:
//
//	:8080            -> http://localhost:8080/api/v1
//	127.0.0.1:8080   -> http://127.0.0.1:8080/api/v1
//	[::1]:8080       -> http://[::1]:8080/api/v1
func apiURL(addr string) string {
	return baseURL(addr) + "/api/v1"
}

func baseURL(addr string) string {
	a := strings.TrimSpace(addr)
	if a == "" {
		return "http://localhost"
	}
	if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
		return strings.TrimRight(a, "/")
	}

	host, port, err := net.SplitHostPort(a)
	if err == nil {
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "localhost"
		}
		return "http://" + net.JoinHostPort(host, port)
	}
	if strings.HasPrefix(a, ":") {
		return "http://localhost" + a
	}
	return "http://" + a
}
