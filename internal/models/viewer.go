package models

// Viewer roles known to the platform.
const (
	RoleUser    = "user"
	RolePremium = "premium"
	RoleStaff   = "staff"
	RoleAdmin   = "admin"
)

// UserRoles lists the valid role values.
var UserRoles = []string{RoleUser, RolePremium, RoleStaff, RoleAdmin}

// Device types derived from the User-Agent.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// DeviceTypes lists the valid device type values.
var DeviceTypes = []string{DeviceMobile, DeviceTablet, DeviceDesktop}

// ViewerContext holds the attributes of the requesting viewer used for
// targeting and frequency capping. Fields left empty are treated as unknown;
// targeting against an unknown attribute fails closed rather than matching
// as a wildcard.
type ViewerContext struct {
	UserID     string // authenticated user id, empty for anonymous viewers
	SessionID  string // opaque session id for anonymous frequency capping
	Country    string // ISO 3166-1 alpha-2, derived from the request IP
	DeviceType string
	Role       string
	Language   string // primary BCP 47 language subtag, e.g. "en"
	IsBot      bool
}

// Key returns the identity used for frequency capping and variant
// assignment: the user id when authenticated, otherwise the session id.
// An empty key means no stable identity is available.
func (v ViewerContext) Key() string {
	if v.UserID != "" {
		return "u:" + v.UserID
	}
	if v.SessionID != "" {
		return "s:" + v.SessionID
	}
	return ""
}
