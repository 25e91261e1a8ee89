// Package rbac decides what each role may touch. The model is a plain
// casbin RBAC matrix kept in code; roles come from the user row and travel
// inside the bearer token.
package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Role names.
const (
	RoleAdmin       = "admin"
	RoleTenantAdmin = "admin_inquilino"
	RoleOperator    = "gestor_incidentes"
	RoleAuditor     = "auditor"
)

// Objects and actions used across the HTTP surface.
const (
	ObjIncidents   = "incidentes"
	ObjEvidence    = "evidencias"
	ObjTaxonomies  = "taxonomias"
	ObjANCIReports = "reportes_anci"
	ObjDiagnostics = "diagnostico"
	ObjAdmin       = "admin"
	ObjLogs        = "logs"

	ActRead   = "read"
	ActWrite  = "write"
	ActDelete = "delete"
)

const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

type policyRule struct{ role, obj, act string }

var rules = []policyRule{
	{RoleAdmin, ObjAdmin, ActRead},
	{RoleAdmin, ObjAdmin, ActWrite},
	{RoleAdmin, ObjLogs, ActRead},
	{RoleAdmin, ObjDiagnostics, ActRead},
	{RoleAdmin, ObjDiagnostics, ActWrite},

	{RoleTenantAdmin, ObjIncidents, ActDelete},
	{RoleTenantAdmin, ObjLogs, ActRead},

	{RoleOperator, ObjIncidents, ActRead},
	{RoleOperator, ObjIncidents, ActWrite},
	{RoleOperator, ObjEvidence, ActRead},
	{RoleOperator, ObjEvidence, ActWrite},
	{RoleOperator, ObjTaxonomies, ActRead},
	{RoleOperator, ObjTaxonomies, ActWrite},
	{RoleOperator, ObjANCIReports, ActRead},
	{RoleOperator, ObjANCIReports, ActWrite},

	{RoleAuditor, ObjIncidents, ActRead},
	{RoleAuditor, ObjEvidence, ActRead},
	{RoleAuditor, ObjTaxonomies, ActRead},
	{RoleAuditor, ObjANCIReports, ActRead},
	{RoleAuditor, ObjDiagnostics, ActRead},
	{RoleAuditor, ObjLogs, ActRead},
}

// Inheritance: admin covers everything the roles below it cover.
var inherits = [][2]string{
	{RoleAdmin, RoleTenantAdmin},
	{RoleTenantAdmin, RoleOperator},
	{RoleOperator, RoleAuditor},
}

type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		if _, err := e.AddPolicy(r.role, r.obj, r.act); err != nil {
			return nil, fmt.Errorf("rbac: cargando regla %v: %w", r, err)
		}
	}
	for _, g := range inherits {
		if _, err := e.AddGroupingPolicy(g[0], g[1]); err != nil {
			return nil, err
		}
	}
	return &Policy{enforcer: e}, nil
}

// Allowed reports whether any of the user's roles grants the action.
func (p *Policy) Allowed(roles []string, obj, act string) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(role, obj, act)
		if err == nil && ok {
			return true
		}
	}
	return false
}
