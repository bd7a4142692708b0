// Package policy holds the owner/admin capability rules for profile access.
// Every persistence-layer operation is checked here with the caller's role as
// read from the database on the current request, so a revoked admin flag
// takes effect immediately. Anything not explicitly allowed is denied.
package policy

// Role names as stored on the caller's own user row.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Request describes one persistence-layer operation to authorize.
type Request struct {
	CallerID   uint   // authenticated user id (0 = unauthenticated)
	CallerRole string // role resolved from the caller's own row this request
	OwnerID    uint   // user id owning the target profile
	Write      bool
	SetsRole   bool // the write attempts to change the role column
}

// Allow evaluates the owner rule then the admin rule. Default deny.
func Allow(req Request) bool {
	if req.CallerID == 0 {
		return false
	}
	// role changes never flow through profile writes, owner or not
	if req.SetsRole {
		return false
	}
	if req.CallerID == req.OwnerID {
		return true
	}
	// admins may read any profile; admin write access is not granted
	if !req.Write && req.CallerRole == RoleAdmin {
		return true
	}
	return false
}

// CanRead reports whether caller may read the profile owned by ownerID.
func CanRead(callerID uint, callerRole string, ownerID uint) bool {
	return Allow(Request{CallerID: callerID, CallerRole: callerRole, OwnerID: ownerID})
}

// CanWrite reports whether caller may write the profile owned by ownerID.
func CanWrite(callerID uint, callerRole string, ownerID uint) bool {
	return Allow(Request{CallerID: callerID, CallerRole: callerRole, OwnerID: ownerID, Write: true})
}

// CanReadAll reports whether the caller may enumerate or export every
// profile (admin surfaces).
func CanReadAll(callerID uint, callerRole string) bool {
	return callerID != 0 && callerRole == RoleAdmin
}
