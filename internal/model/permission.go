package model

// Permission represents a string code for a specific administrative action.
type Permission string

const (
	// PermissionResultsRead allows viewing exam reports, result lists and answer breakdowns.
	PermissionResultsRead Permission = "results:read"

	// PermissionSessionsReset allows wiping a participant's session and answers.
	PermissionSessionsReset Permission = "sessions:reset"

	// PermissionExamsMonitor allows opening the live exam monitor.
	PermissionExamsMonitor Permission = "exams:monitor"

	// PermissionExamsCache allows refreshing the cached exam catalog.
	PermissionExamsCache Permission = "exams:cache"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionResultsRead,
	PermissionSessionsReset,
	PermissionExamsMonitor,
	PermissionExamsCache,
}

// ParsePermission reports whether s names a known permission.
func ParsePermission(s string) (Permission, bool) {
	for _, p := range AllPermissions {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}
