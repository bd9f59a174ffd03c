// internal/app/system/authz/roles.go
package authz

// Role strings stored on user documents and in sessions.
//
// The tree they manage: Area → City → Neighborhood → Worker.
const (
	RoleAdmin       = "admin"       // full tree
	RoleAreaManager = "areamanager" // assigned areas and everything below
	RoleCoordinator = "coordinator" // assigned cities and everything below
	RoleSupervisor  = "supervisor"  // assigned neighborhoods only (junction table)
	RoleWorker      = "worker"      // self
)

// ManagementRoles are the roles that can operate on records other than
// their own. Workers are deliberately excluded.
var ManagementRoles = []string{RoleAdmin, RoleAreaManager, RoleCoordinator, RoleSupervisor}

// ValidRole reports whether s is a known role string.
func ValidRole(s string) bool {
	switch s {
	case RoleAdmin, RoleAreaManager, RoleCoordinator, RoleSupervisor, RoleWorker:
		return true
	}
	return false
}
