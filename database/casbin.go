package database

import (
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const (
	AdminRole = "admin"
	OpsPath   = "/v1/ops/*"
	OpsMethod = "(GET)|(POST)"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// NewEnforcer builds the RESTful RBAC enforcer. Without db the policy lives
// in memory only.
func NewEnforcer(db *gorm.DB) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, errors.Wrap(err, "load rbac model")
	}
	if db == nil {
		return casbin.NewEnforcer(m)
	}

	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, errors.Wrap(err, "casbin adapter")
	}
	return casbin.NewEnforcer(m, adapter)
}

// Casbin returns an enforcer where the admin role may use the ops endpoints
// and every id in admins holds that role.
func Casbin(db *gorm.DB, admins []string) (*casbin.Enforcer, error) {
	e, err := NewEnforcer(db)
	if err != nil {
		return nil, err
	}

	if hasPolicy, _ := e.HasPolicy(AdminRole, OpsPath, OpsMethod); !hasPolicy {
		if _, err := e.AddPolicy(AdminRole, OpsPath, OpsMethod); err != nil {
			return nil, errors.Wrap(err, "add ops policy")
		}
	}
	for _, id := range admins {
		if _, err := e.AddRoleForUser(id, AdminRole); err != nil {
			return nil, errors.Wrapf(err, "grant %s to %s", AdminRole, id)
		}
	}

	dbLog.Info("rbac ready, %d ops admins configured", len(admins))
	return e, nil
}
