package auth_test

import (
	"testing"

	"github.com/sennetconsortium/entity-api/domain/auth"
	"github.com/sennetconsortium/entity-api/domain/entity"
)

func TestAnonymous(t *testing.T) {
	var nobody *auth.User
	if !nobody.Anonymous() {
		t.Error("nil user should be anonymous")
	}
	if !(&auth.User{}).Anonymous() {
		t.Error("empty user should be anonymous")
	}
	if (&auth.User{Sub: "abc"}).Anonymous() {
		t.Error("user with sub should not be anonymous")
	}
}

func TestAccessLevel(t *testing.T) {
	tests := []struct {
		name string
		user *auth.User
		want entity.AccessLevel
	}{
		{"anonymous", &auth.User{}, entity.AccessLevelPublic},
		{"member", &auth.User{Sub: "abc"}, entity.AccessLevelConsortium},
		{"admin", &auth.User{Sub: "abc", IsAdmin: true}, entity.AccessLevelProtected},
	}
	for _, tt := range tests {
		if got := tt.user.AccessLevel(); got != tt.want {
			t.Errorf("%s: AccessLevel() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestProviderGroups(t *testing.T) {
	u := &auth.User{
		Sub: "abc",
		Groups: []auth.Group{
			{UUID: "g1", Name: "Readers"},
			{UUID: "g2", Name: "Lab A", DataProvider: true},
			{UUID: "g3", Name: "Lab B", DataProvider: true},
		},
	}

	providers := u.ProviderGroups()
	if len(providers) != 2 || providers[0].UUID != "g2" || providers[1].UUID != "g3" {
		t.Errorf("ProviderGroups() = %+v, want g2 and g3", providers)
	}

	uuids := u.GroupUUIDs()
	if len(uuids) != 3 || uuids[0] != "g1" {
		t.Errorf("GroupUUIDs() = %v", uuids)
	}
}
