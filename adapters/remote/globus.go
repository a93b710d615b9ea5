package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sennetconsortium/entity-api/domain/auth"
	"github.com/sennetconsortium/entity-api/ports"
)

// AuthProvider resolves bearer tokens to user identities through the Globus
// identity service.
//
// API Contract:
//
//	GET /v2/oauth2/userinfo
//	Response: {"sub": "...", "email": "...", "name": "..."}
//
//	GET /v2/groups/my_groups
//	Response: [{"id": "...", "name": "...", "data_provider": true}]
//
// Token resolutions are cached for a short TTL so a burst of requests from
// the same caller does not hammer the identity service.
type AuthProvider struct {
	client         *Client
	adminGroupUUID string
	clock          ports.Clock

	mu    sync.Mutex
	ttl   time.Duration
	cache map[string]cachedUser
}

type cachedUser struct {
	user    *auth.User
	expires time.Time
}

// NewAuthProvider creates a Globus-backed auth provider. adminGroupUUID
// names the group whose members hold the protected access level.
func NewAuthProvider(client *Client, adminGroupUUID string, ttl time.Duration, clock ports.Clock) *AuthProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AuthProvider{
		client:         client,
		adminGroupUUID: adminGroupUUID,
		ttl:            ttl,
		clock:          clock,
		cache:          make(map[string]cachedUser),
	}
}

// SetTokenTTL changes how long future token resolutions stay cached.
// Non-positive values fall back to one minute, matching NewAuthProvider.
func (p *AuthProvider) SetTokenTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	p.mu.Lock()
	p.ttl = ttl
	p.mu.Unlock()
}

type userInfoResponse struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type groupResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DataProvider bool   `json:"data_provider"`
}

// UserFromToken validates the token and resolves the caller's identity and
// group membership.
func (p *AuthProvider) UserFromToken(ctx context.Context, token string) (*auth.User, error) {
	now := p.clock.Now()

	p.mu.Lock()
	if entry, ok := p.cache[token]; ok && now.Before(entry.expires) {
		p.mu.Unlock()
		return entry.user, nil
	}
	p.mu.Unlock()

	var info userInfoResponse
	if err := p.client.Request(ctx, "GET", "/v2/oauth2/userinfo", token, nil, &info); err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}

	var groups []groupResponse
	if err := p.client.Request(ctx, "GET", "/v2/groups/my_groups", token, nil, &groups); err != nil {
		return nil, fmt.Errorf("resolve groups: %w", err)
	}

	user := &auth.User{
		Sub:         info.Sub,
		Email:       info.Email,
		DisplayName: info.Name,
		Token:       token,
	}
	for _, g := range groups {
		user.Groups = append(user.Groups, auth.Group{
			UUID:         g.ID,
			Name:         g.Name,
			DataProvider: g.DataProvider,
		})
		if g.ID == p.adminGroupUUID {
			user.IsAdmin = true
		}
	}

	p.mu.Lock()
	p.cache[token] = cachedUser{user: user, expires: now.Add(p.ttl)}
	p.mu.Unlock()
	return user, nil
}

// FlushCache drops all cached token resolutions.
func (p *AuthProvider) FlushCache() {
	p.mu.Lock()
	p.cache = make(map[string]cachedUser)
	p.mu.Unlock()
}
