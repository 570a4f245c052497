package logic

import (
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/panelworks/adserve/internal/geoip"
	"github.com/panelworks/adserve/internal/models"
)

// Headers populated by the platform's session middleware upstream of the ad
// server. Absent headers leave the corresponding viewer attribute unknown.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// SessionCookie carries the anonymous viewer identity used for frequency
// capping and variant assignment when no authenticated user is present.
const SessionCookie = "ad_session"

// ResolveDeviceType maps a raw User-Agent string to one of the platform's
// device type values using the uasurfer library.
func ResolveDeviceType(uaString string) (deviceType string, isBot bool) {
	u := uasurfer.Parse(uaString)
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		deviceType = models.DeviceDesktop
	case uasurfer.DevicePhone:
		deviceType = models.DeviceMobile
	case uasurfer.DeviceTablet:
		deviceType = models.DeviceTablet
	default:
		deviceType = ""
	}
	return deviceType, u.IsBot()
}

// primaryLanguage extracts the primary subtag of the first Accept-Language
// entry, e.g. "en" from "en-US,en;q=0.9,ko;q=0.8".
func primaryLanguage(header string) string {
	first := header
	if i := strings.IndexAny(first, ",;"); i >= 0 {
		first = first[:i]
	}
	first = strings.TrimSpace(first)
	if i := strings.Index(first, "-"); i >= 0 {
		first = first[:i]
	}
	if first == "" || first == "*" {
		return ""
	}
	return strings.ToLower(first)
}

// clientIP extracts the originating client IP, honoring X-Forwarded-For from
// the platform's reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ResolveViewer derives the full viewer context from an inbound request:
// role and user id from the session headers, country from the request IP,
// device type from the User-Agent, and language from Accept-Language.
// Attributes that cannot be resolved stay empty and fail closed in targeting.
func ResolveViewer(g *geoip.GeoIP, r *http.Request) models.ViewerContext {
	v := models.ViewerContext{
		UserID:   r.Header.Get(HeaderUserID),
		Language: primaryLanguage(r.Header.Get("Accept-Language")),
	}

	if role := r.Header.Get(HeaderUserRole); models.StringSet(models.UserRoles).Contains(role) {
		v.Role = role
	}

	if c, err := r.Cookie(SessionCookie); err == nil {
		v.SessionID = c.Value
	}

	v.DeviceType, v.IsBot = ResolveDeviceType(r.UserAgent())

	if ip := net.ParseIP(clientIP(r)); ip != nil {
		v.Country = g.Country(ip)
	}
	return v
}
