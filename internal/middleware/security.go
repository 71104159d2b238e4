package middleware

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"
	apiPermissionsPolicy     = "camera=(), geolocation=(), microphone=(), payment=(), usb=()"
)

// SecureHeaders sets response hardening headers. Empty fields are not sent,
// except that outside DevMode CSP and Permissions-Policy fall back to
// deny-all policies suited to a JSON API.
type SecureHeaders struct {
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	ContentSecurityPolicy string
	XFrameOptions         string
	XContentTypeOptions   string
	ReferrerPolicy        string
	PermissionsPolicy     string

	// DevMode sends HSTS over plain HTTP and drops the fallback policies
	DevMode bool
}

func DefaultSecureHeaders(devMode bool) *SecureHeaders {
	return &SecureHeaders{
		HSTSMaxAge:            2 * 365 * 24 * 60 * 60,
		HSTSIncludeSubdomains: true,
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
		DevMode:               devMode,
	}
}

// static returns the headers that do not depend on the request
func (sh *SecureHeaders) static() http.Header {
	h := http.Header{}
	set := func(key, value, fallback string) {
		if value == "" && !sh.DevMode {
			value = fallback
		}
		if value != "" {
			h.Set(key, value)
		}
	}

	set("Content-Security-Policy", sh.ContentSecurityPolicy, apiContentSecurityPolicy)
	set("Permissions-Policy", sh.PermissionsPolicy, apiPermissionsPolicy)
	set("X-Frame-Options", sh.XFrameOptions, "")
	set("X-Content-Type-Options", sh.XContentTypeOptions, "")
	set("Referrer-Policy", sh.ReferrerPolicy, "")
	return h
}

func (sh *SecureHeaders) Handler(next http.Handler) http.Handler {
	static := sh.static()

	var hsts string
	if sh.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d", sh.HSTSMaxAge)
		if sh.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the progress socket upgrade has no body to protect
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		for key, values := range static {
			h[key] = append([]string(nil), values...)
		}
		if hsts != "" && (r.TLS != nil || sh.DevMode) {
			h.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}
