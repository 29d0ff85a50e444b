package users

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MrEthical07/tenantauth"
	"github.com/google/uuid"
)

// Seed describes one account of a static user list.
type Seed struct {
	ID           string `yaml:"id"`
	TenantID     string `yaml:"tenant_id"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Roles        string `yaml:"roles"`
	Disabled     bool   `yaml:"disabled"`
}

// MemoryRepository is a concurrency-safe in-memory user store.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]*tenantauth.User
	byName map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]*tenantauth.User),
		byName: make(map[string]string),
	}
}

// NewMemoryRepositoryFromSeed loads seeds, defaulting blank tenants to
// defaultTenant, blank ids to random UUIDs and blank roles to USER.
func NewMemoryRepositoryFromSeed(defaultTenant string, seeds []Seed) (*MemoryRepository, error) {
	repo := NewMemoryRepository()
	for _, s := range seeds {
		tenantID := s.TenantID
		if tenantID == "" {
			tenantID = defaultTenant
		}
		id := s.ID
		if id == "" {
			id = uuid.NewString()
		}
		roles := s.Roles
		if roles == "" {
			roles = tenantauth.RoleUser
		}
		err := repo.Add(context.Background(), &tenantauth.User{
			ID:           id,
			Username:     s.Username,
			TenantID:     tenantID,
			PasswordHash: s.PasswordHash,
			Disabled:     s.Disabled,
			Roles:        tenantauth.ParseRoles(roles),
		})
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", s.Username, err)
		}
	}
	return repo, nil
}

func nameKey(tenantID, username string) string {
	return tenantID + "\x00" + username
}

// Add stores a copy of u.
func (r *MemoryRepository) Add(_ context.Context, u *tenantauth.User) error {
	if u == nil || u.ID == "" || strings.TrimSpace(u.Username) == "" || u.TenantID == "" {
		return fmt.Errorf("users: id, username and tenant are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := nameKey(u.TenantID, u.Username)
	if _, ok := r.byID[u.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := r.byName[key]; ok {
		return ErrDuplicate
	}
	r.byID[u.ID] = copyUser(u)
	r.byName[key] = u.ID
	return nil
}

func (r *MemoryRepository) FindByUsername(_ context.Context, tenantID, username string) (*tenantauth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[nameKey(tenantID, username)]
	if !ok {
		return nil, fmt.Errorf("users.FindByUsername: %w", tenantauth.ErrNotFound)
	}
	return copyUser(r.byID[id]), nil
}

func (r *MemoryRepository) FindByID(_ context.Context, userID string) (*tenantauth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[userID]
	if !ok {
		return nil, fmt.Errorf("users.FindByID: %w", tenantauth.ErrNotFound)
	}
	return copyUser(u), nil
}

func (r *MemoryRepository) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	return r.update(userID, func(u *tenantauth.User) { u.PasswordHash = passwordHash })
}

func (r *MemoryRepository) SetDisabled(_ context.Context, userID string, disabled bool) error {
	return r.update(userID, func(u *tenantauth.User) { u.Disabled = disabled })
}

func (r *MemoryRepository) SetRoles(_ context.Context, userID string, roles tenantauth.RoleSet) error {
	return r.update(userID, func(u *tenantauth.User) { u.Roles = tenantauth.NewRoleSet(roles...) })
}

func (r *MemoryRepository) update(userID string, fn func(*tenantauth.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return fmt.Errorf("users.update: %w", tenantauth.ErrNotFound)
	}
	fn(u)
	return nil
}

// Len reports the number of stored accounts.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func copyUser(u *tenantauth.User) *tenantauth.User {
	out := *u
	out.Roles = tenantauth.NewRoleSet(u.Roles...)
	return &out
}
