package db

// Built-in role UUIDs for the default catalog
// These correspond to roles seeded by the initial migration
const (
	// SystemRoleClinicAdmin manages clinics, users and role assignments in the portal
	SystemRoleClinicAdmin = "00000000-0000-0000-0000-00000000a001"

	// SystemRoleHeadDentist sees every patient of the clinic and may reassign them
	SystemRoleHeadDentist = "00000000-0000-0000-0000-00000000a002"

	// SystemRoleDentist works on their own patients
	SystemRoleDentist = "00000000-0000-0000-0000-00000000a003"

	// SystemRoleAssistant reads patients and records of their own patients
	SystemRoleAssistant = "00000000-0000-0000-0000-00000000a004"
)

// GetSystemRoleByName returns the built-in role ID for a well-known name
func GetSystemRoleByName(name string) (string, bool) {
	switch name {
	case "clinic-admin":
		return SystemRoleClinicAdmin, true
	case "head-dentist":
		return SystemRoleHeadDentist, true
	case "dentist":
		return SystemRoleDentist, true
	case "assistant":
		return SystemRoleAssistant, true
	default:
		return "", false
	}
}

// IsSystemRole reports whether roleID belongs to the seeded catalog
func IsSystemRole(roleID string) bool {
	switch roleID {
	case SystemRoleClinicAdmin, SystemRoleHeadDentist, SystemRoleDentist, SystemRoleAssistant:
		return true
	}
	return false
}
