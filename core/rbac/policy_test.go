package rbac

import "testing"

func TestPolicyMatrix(t *testing.T) {
	p, err := NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}

	cases := []struct {
		role string
		obj  string
		act  string
		want bool
	}{
		{RoleAuditor, ObjIncidents, ActRead, true},
		{RoleAuditor, ObjIncidents, ActWrite, false},
		{RoleAuditor, ObjLogs, ActRead, true},
		{RoleAuditor, ObjAdmin, ActRead, false},

		{RoleOperator, ObjIncidents, ActWrite, true},
		{RoleOperator, ObjIncidents, ActDelete, false},
		{RoleOperator, ObjEvidence, ActWrite, true},
		{RoleOperator, ObjAdmin, ActWrite, false},
		// Inherited from auditor.
		{RoleOperator, ObjDiagnostics, ActRead, true},

		{RoleTenantAdmin, ObjIncidents, ActDelete, true},
		{RoleTenantAdmin, ObjIncidents, ActWrite, true},
		{RoleTenantAdmin, ObjAdmin, ActWrite, false},

		{RoleAdmin, ObjAdmin, ActWrite, true},
		{RoleAdmin, ObjIncidents, ActDelete, true},
		{RoleAdmin, ObjEvidence, ActWrite, true},
	}
	for _, c := range cases {
		if got := p.Allowed([]string{c.role}, c.obj, c.act); got != c.want {
			t.Errorf("%s %s %s = %v, want %v", c.role, c.obj, c.act, got, c.want)
		}
	}
}

func TestPolicyMultipleRoles(t *testing.T) {
	p, err := NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	roles := []string{RoleAuditor, RoleOperator}
	if !p.Allowed(roles, ObjIncidents, ActWrite) {
		t.Fatal("any matching role must grant")
	}
	if p.Allowed(nil, ObjIncidents, ActRead) {
		t.Fatal("no roles must deny")
	}
	if p.Allowed([]string{"rol_desconocido"}, ObjIncidents, ActRead) {
		t.Fatal("unknown role must deny")
	}
}

func TestNilPolicyDenies(t *testing.T) {
	var p *Policy
	if p.Allowed([]string{RoleAdmin}, ObjAdmin, ActWrite) {
		t.Fatal("nil policy must deny")
	}
}
