// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents every kind of account: admins, area managers, city
// coordinators, neighborhood supervisors, and workers who can sign in.
//
// Assignment fields by role:
//   - areamanager: AreaIDs holds the areas the manager runs.
//   - coordinator: CityIDs holds the cities the coordinator runs.
//   - supervisor: neighborhood assignments live in the
//     supervisor_assignments collection, never on the user document.
//   - worker: WorkerID links back to the worker document.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName   string             `bson:"full_name" json:"full_name"`
	FullNameCI string             `bson:"full_name_ci" json:"full_name_ci"` // lowercase, diacritics-stripped
	LoginID    string             `bson:"login_id" json:"login_id"`
	LoginIDCI  string             `bson:"login_id_ci" json:"login_id_ci"`
	AuthMethod string             `bson:"auth_method,omitempty" json:"auth_method,omitempty"` // internal | google

	PasswordHash string `bson:"password_hash,omitempty" json:"-"`

	Role   string `bson:"role" json:"role"`     // admin | areamanager | coordinator | supervisor | worker
	Status string `bson:"status" json:"status"` // active | disabled

	// IsSuperAdmin bypasses every scope check regardless of Role.
	IsSuperAdmin bool `bson:"is_super_admin,omitempty" json:"is_super_admin,omitempty"`

	AreaIDs  []primitive.ObjectID `bson:"area_ids,omitempty" json:"area_ids,omitempty"`
	CityIDs  []primitive.ObjectID `bson:"city_ids,omitempty" json:"city_ids,omitempty"`
	WorkerID *primitive.ObjectID  `bson:"worker_id,omitempty" json:"worker_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
