package gateway

import (
	"quiltplatform/quilt/auth"
	"quiltplatform/quilt/schema"
	"testing"
)

func TestResolve(t *testing.T) {
	principal := &auth.Principal{Id: "u1", Email: "u1@mky.com"}
	adminProfile := &schema.User{Id: "u1", Role: schema.RoleAdmin}
	staffProfile := &schema.User{Id: "u1", Role: schema.RoleStaff}
	financeProfile := &schema.User{Id: "u1", Role: schema.RoleFinance}

	tests := []struct {
		name   string
		state  State
		target Target
	}{
		{"loading", State{Loading: true}, TargetLoading},
		{"loading wins over auth", State{Loading: true, Principal: principal, Profile: adminProfile, IsPrivilegedTenant: true}, TargetLoading},
		{"unauthenticated", State{}, TargetUnauthenticated},
		{"no profile", State{Principal: principal}, TargetNoProfile},
		{"wrong tenant", State{Principal: principal, Profile: staffProfile}, TargetWrongTenant},
		{"admin", State{Principal: principal, Profile: adminProfile, IsPrivilegedTenant: true}, TargetAdmin},
		{"staff", State{Principal: principal, Profile: staffProfile, IsPrivilegedTenant: true}, TargetStaff},
		{"unknown role", State{Principal: principal, Profile: financeProfile, IsPrivilegedTenant: true}, TargetUnknownRole},
	}

	for _, test := range tests {
		if target := Resolve(test.state); target != test.target {
			t.Errorf("%v: expected %v, got %v", test.name, test.target, target)
		}
	}
}

func TestTargetPaths(t *testing.T) {
	paths := map[Target]string{
		TargetLoading:         "",
		TargetUnauthenticated: "/auth",
		TargetNoProfile:       "/access-denied",
		TargetWrongTenant:     "/access-denied",
		TargetUnknownRole:     "/access-denied",
		TargetAdmin:           "/mky-admin",
		TargetStaff:           "/mky-staff",
	}

	for target, path := range paths {
		if target.Path() != path {
			t.Errorf("%v: expected path %q, got %q", target, path, target.Path())
		}
	}
}
