// Package auth provides value types for caller identity and group membership.
// Tokens are validated by the external identity service; see adapters/globus.
package auth

import "github.com/sennetconsortium/entity-api/domain/entity"

// Group is a consortium group the caller belongs to.
type Group struct {
	UUID string `json:"uuid"`
	Name string `json:"displayname"`

	// DataProvider marks groups whose members may register new entities.
	DataProvider bool `json:"data_provider"`
}

// User is a validated caller identity.
type User struct {
	Sub         string  `json:"sub"`
	Email       string  `json:"email"`
	DisplayName string  `json:"name"`
	Token       string  `json:"-"`
	Groups      []Group `json:"group_membership"`
	IsAdmin     bool    `json:"is_admin"`
}

// Anonymous reports whether the request carried no valid token.
func (u *User) Anonymous() bool {
	return u == nil || u.Sub == ""
}

// AccessLevel returns the highest data-access level the caller may read.
func (u *User) AccessLevel() entity.AccessLevel {
	if u.Anonymous() {
		return entity.AccessLevelPublic
	}
	if u.IsAdmin {
		return entity.AccessLevelProtected
	}
	return entity.AccessLevelConsortium
}

// GroupUUIDs returns the uuids of all groups the caller belongs to.
func (u *User) GroupUUIDs() []string {
	if u == nil {
		return nil
	}
	uuids := make([]string, 0, len(u.Groups))
	for _, g := range u.Groups {
		uuids = append(uuids, g.UUID)
	}
	return uuids
}

// ProviderGroups returns the caller's data-provider groups.
func (u *User) ProviderGroups() []Group {
	if u == nil {
		return nil
	}
	var groups []Group
	for _, g := range u.Groups {
		if g.DataProvider {
			groups = append(groups, g)
		}
	}
	return groups
}
