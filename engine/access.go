package engine

// Subtype drives access control: each task definition declares one, and the
// static table below maps it to the permission the operator must hold.
type Subtype string

const (
	SubtypeNotification Subtype = "notification"
	SubtypeRenewal      Subtype = "renewal"
	SubtypeHofStop      Subtype = "hof-stop"
	SubtypeHofResume    Subtype = "hof-resume"
)

var permissionBySubtype = map[Subtype]string{
	SubtypeNotification: "returns:notifications",
	SubtypeRenewal:      "licences:renewals",
	SubtypeHofStop:      "hof:notifications",
	SubtypeHofResume:    "hof:notifications",
}

// Operator identifies the signed-in user for one request. Identity and
// permissions are established by the fronting auth layer; the engine only
// consumes them.
type Operator struct {
	Email       string
	Permissions map[string]bool
}

// HasPermission reports whether the operator holds the named permission.
func (o Operator) HasPermission(permission string) bool {
	return o.Permissions[permission]
}

// CheckAccess verifies the operator may act on the given task definition.
// It is called on every request of the flow, never cached in flow state, so
// a mid-flow permission revocation takes effect on the next request. An
// unknown subtype fails closed as a configuration error.
func CheckAccess(op Operator, def *TaskDefinition) error {
	permission, ok := permissionBySubtype[def.Subtype]
	if !ok {
		return NewConfigError(def.ID, "no permission mapped for subtype %q", def.Subtype)
	}
	if !op.HasPermission(permission) {
		return NewAccessDeniedError(def.ID, permission)
	}
	return nil
}
