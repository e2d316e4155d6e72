package engine

import "itemcore/pkg/schema"

// RequestedFields is the tree of field keys a role check recurses into:
// property ids and item value keys, nested per item.
type RequestedFields map[string]RequestedFields

// roleListGrants evaluates a granted-role list. The anyone sentinel grants
// unconditionally; the owner sentinel grants only when ownership is known
// and matches the requesting user; otherwise the literal role must appear.
// Callers that do not know the owner must pass schema.UnspecifiedOwner,
// never a zero guess, or a guest could match as owner.
func roleListGrants(granted []string, role string, userID, ownerID int64) bool {
	// An empty list means the schema author declared no restriction.
	if len(granted) == 0 {
		return true
	}
	for _, g := range granted {
		switch g {
		case schema.RoleAnyone:
			return true
		case schema.RoleOwner:
			if ownerID != schema.UnspecifiedOwner && userID == ownerID {
				return true
			}
		default:
			if g == role {
				return true
			}
		}
	}
	return false
}

// deniedCode distinguishes a plain forbidden from a guest who could have
// been granted access under some authenticated role.
func deniedCode(granted []string, role string) schema.AccessDeniedCode {
	if role != schema.RoleGuest {
		return schema.CodeForbidden
	}
	for _, g := range granted {
		if g != schema.RoleGuest {
			return schema.CodeMustAuthenticate
		}
	}
	return schema.CodeForbidden
}

func (d *ItemDefinition) rolesFor(action schema.Action) []string {
	switch action {
	case schema.ActionRead:
		return d.def.ReadRoles
	case schema.ActionCreate:
		return d.def.CreateRoles
	case schema.ActionEdit:
		return d.def.EditRoles
	case schema.ActionDelete:
		return d.def.DeleteRoles
	default:
		return nil
	}
}

func (p *Property) rolesFor(action schema.Action) []string {
	switch action {
	case schema.ActionRead:
		return p.def.ReadRoles
	case schema.ActionCreate, schema.ActionEdit:
		return p.def.EditRoles
	default:
		return nil
	}
}

// CheckRoleAccess verifies a property-level action. With reportErr set, a
// denial returns a structured access-denied error; otherwise it returns
// false silently.
func (p *Property) CheckRoleAccess(action schema.Action, role string, userID, ownerID int64, reportErr bool) (bool, error) {
	granted := p.rolesFor(action)
	if roleListGrants(granted, role, userID, ownerID) {
		return true, nil
	}
	if !reportErr {
		return false, nil
	}
	return false, &schema.AccessDeniedError{
		Code:          deniedCode(granted, role),
		Action:        action,
		Role:          role,
		GrantedRoles:  granted,
		QualifiedPath: p.path,
	}
}

// CheckRoleAccess verifies an action against the definition's role lists and,
// when the definition-level check passes, recurses into the requested
// property and item fields. The definition-level denial short-circuits; no
// nested checks run for a request that may not touch the definition at all.
func (d *ItemDefinition) CheckRoleAccess(action schema.Action, role string, userID, ownerID int64, requested RequestedFields, reportErr bool) (bool, error) {
	granted := d.rolesFor(action)
	if !roleListGrants(granted, role, userID, ownerID) {
		if !reportErr {
			return false, nil
		}
		return false, &schema.AccessDeniedError{
			Code:          deniedCode(granted, role),
			Action:        action,
			Role:          role,
			GrantedRoles:  granted,
			QualifiedPath: d.path,
		}
	}
	for key, nested := range requested {
		if p, ok := d.Property(key); ok {
			if ok, err := p.CheckRoleAccess(action, role, userID, ownerID, reportErr); !ok {
				return false, err
			}
			continue
		}
		for _, it := range d.items {
			if key == schema.ItemValueKey(it.ID()) {
				if ok, err := it.inner.CheckRoleAccess(action, role, userID, ownerID, nested, reportErr); !ok {
					return false, err
				}
				break
			}
		}
	}
	return true, nil
}
