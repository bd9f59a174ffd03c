// internal/app/system/status/status.go
package status

// Entity status values shared across collections.
const (
	Active   = "active"
	Inactive = "inactive"
	Disabled = "disabled"
)
