package http

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"spese-analytics/internal/core"
)

// Reasons a request is flagged as suspicious. They label the
// suspicious_requests_total counter.
const (
	reasonScanPath       = "scan_path"
	reasonScannerAgent   = "scanner_agent"
	reasonMethod         = "method"
	reasonOversizedURL   = "oversized_url"
	reasonForwardedChain = "forwarded_chain"
	reasonUserSegment    = "user_segment"
	reasonExpenseSegment = "expense_segment"
)

const (
	maxURLLength        = 2048
	maxForwardedHops    = 5
	usersPathPrefix     = "/api/users/"
	expensesPathSegment = "expenses"
)

// scanPatterns are fragments of paths and queries that never belong to a
// request against this API: traversal, leaked dotfiles and the usual CMS and
// admin panels scanners look for.
var scanPatterns = []string{
	"../", "..\\", "%2e%2e", ".env", ".git", ".ssh", "etc/passwd",
	"wp-admin", "wp-login", "phpmyadmin", ".php", "cgi-bin", "cmd.exe",
	"<script", "javascript:", "union select",
}

var scannerAgents = []string{
	"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab", "nuclei",
}

// trustedProxies defines networks that are trusted to set forwarding headers.
var trustedProxies = []*net.IPNet{
	parsecidr("127.0.0.0/8"),
	parsecidr("10.0.0.0/8"),
	parsecidr("172.16.0.0/12"),
	parsecidr("192.168.0.0/16"),
}

func parsecidr(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

func isTrustedProxy(ip net.IP) bool {
	for _, network := range trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// extractClientIP returns the peer address, or the forwarded client address
// when the peer is a trusted proxy.
func extractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsed := net.ParseIP(directIP)
	if parsed == nil || !isTrustedProxy(parsed) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

// suspiciousReason inspects a request and returns why it looks hostile, or
// false when it looks like ordinary API traffic. Flagged requests are still
// served; the router rejects what it cannot match.
func suspiciousReason(r *http.Request) (string, bool) {
	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", http.MethodConnect:
		return reasonMethod, true
	}

	if len(r.URL.String()) > maxURLLength {
		return reasonOversizedURL, true
	}

	target := strings.ToLower(r.URL.Path + "?" + r.URL.RawQuery)
	for _, p := range scanPatterns {
		if strings.Contains(target, p) {
			return reasonScanPath, true
		}
	}

	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range scannerAgents {
		if strings.Contains(agent, a) {
			return reasonScannerAgent, true
		}
	}

	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") >= maxForwardedHops {
		return reasonForwardedChain, true
	}

	return malformedSegment(r.URL.Path)
}

// malformedSegment checks the identifiers of /api/users/{userID}/... paths:
// the user id must be usable as a cache key segment and an expense id must be
// a positive integer.
func malformedSegment(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, usersPathPrefix)
	if !ok {
		return "", false
	}
	segments := strings.Split(rest, "/")
	if err := core.ValidateUserID(segments[0]); err != nil {
		return reasonUserSegment, true
	}
	if len(segments) >= 3 && segments[1] == expensesPathSegment {
		if id, err := strconv.ParseInt(segments[2], 10, 64); err != nil || id <= 0 {
			return reasonExpenseSegment, true
		}
	}
	return "", false
}
