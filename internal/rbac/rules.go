package rbac

// Permissions understood by the statistics service.
const (
	PermView   = "stats:view"
	PermWrite  = "stats:write"
	PermDelete = "stats:delete"
)

// Default policy. Managers run imports, manual edits and generation;
// only admins delete rows.
var RolePermissions = map[string][]string{
	"viewer": {
		PermView,
	},
	"manager": {
		PermView,
		PermWrite,
	},
	"admin": {
		"*", // everything
	},
}
