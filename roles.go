package portal

// Role is the closed classification of a portal user.
type Role string

const (
	// RoleStandard is a student account (register for olympiads, view results).
	RoleStandard Role = "standard"
	// RoleStaff is a teacher account (manage school applications).
	RoleStaff Role = "staff"
	// RoleAdministrator is a full admin account (user and listing management).
	RoleAdministrator Role = "administrator"
)

// Backend wire values predate the closed role set and are normalized on
// ingestion: "normal" -> standard, "teacher" -> staff, "admin" -> administrator.
var wireRoles = map[string]Role{
	"normal":        RoleStandard,
	"standard":      RoleStandard,
	"teacher":       RoleStaff,
	"staff":         RoleStaff,
	"admin":         RoleAdministrator,
	"administrator": RoleAdministrator,
}

// wireValue maps a normalized role back to the value the backend expects.
var wireValues = map[Role]string{
	RoleStandard:      "normal",
	RoleStaff:         "teacher",
	RoleAdministrator: "admin",
}

// ParseRole normalizes a backend role string into the closed role set.
// The second return value reports whether the input was recognized.
func ParseRole(raw string) (Role, bool) {
	if role, ok := wireRoles[raw]; ok {
		return role, true
	}
	return RoleStandard, false
}

// NormalizeRole maps any backend role string into the closed set, falling
// back to the least privileged role for unknown values.
func NormalizeRole(raw string) Role {
	role, _ := ParseRole(raw)
	return role
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleStandard, RoleStaff, RoleAdministrator:
		return true
	default:
		return false
	}
}

// WireValue returns the string the backend API uses for this role.
func (r Role) WireValue() string {
	if v, ok := wireValues[r]; ok {
		return v
	}
	return wireValues[RoleStandard]
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleStandard:      0,
		RoleStaff:         1,
		RoleAdministrator: 2,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	requiredLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= requiredLevel
}

// In checks whether the role belongs to the given allowed set.
func (r Role) In(allowed ...Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}
