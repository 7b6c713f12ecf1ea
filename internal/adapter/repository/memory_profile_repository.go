package repository

import (
	"context"

	"speak/internal/domain/entity"
	"speak/pkg/errors"
)

type memoryProfileRepository struct {
	store *MemoryStore
}

func (r *memoryProfileRepository) GetUser(ctx context.Context, uid string) (*entity.Profile, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.users[uid]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	return copyProfile(p), nil
}

func (r *memoryProfileRepository) GetCounselor(ctx context.Context, uid string) (*entity.Profile, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.counselors[uid]
	if !ok {
		return nil, errors.NotFound("Counselor", nil)
	}
	return copyProfile(p), nil
}

func copyProfile(p *entity.Profile) *entity.Profile {
	c := *p
	c.FCMTokens = append([]string(nil), p.FCMTokens...)
	if p.LastLogin != nil {
		t := *p.LastLogin
		c.LastLogin = &t
	}
	return &c
}

func (r *memoryProfileRepository) CreateUser(ctx context.Context, profile *entity.Profile) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	profile.Role = entity.RoleUser
	profile.CreatedAt = r.store.serverTime()
	login := profile.CreatedAt
	profile.LastLogin = &login
	r.store.users[profile.ID] = copyProfile(profile)
	return nil
}

func (r *memoryProfileRepository) CreateCounselor(ctx context.Context, profile *entity.Profile) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	profile.Role = entity.RoleCounselor
	profile.CreatedAt = r.store.serverTime()
	login := profile.CreatedAt
	profile.LastLogin = &login
	r.store.counselors[profile.ID] = copyProfile(profile)
	return nil
}

func (r *memoryProfileRepository) IsVerifiedCounselorEmail(ctx context.Context, email string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.verified[entity.SanitizeEmail(email)], nil
}

// AllowCounselorEmail adds an address to the verified counselor allow-list.
func (s *MemoryStore) AllowCounselorEmail(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verified[entity.SanitizeEmail(email)] = true
}

func (r *memoryProfileRepository) profile(uid string, role entity.Role) (*entity.Profile, error) {
	if role == entity.RoleCounselor {
		if p, ok := r.store.counselors[uid]; ok {
			return p, nil
		}
		return nil, errors.NotFound("Counselor", nil)
	}
	if p, ok := r.store.users[uid]; ok {
		return p, nil
	}
	return nil, errors.NotFound("User", nil)
}

func (r *memoryProfileRepository) RecordLogin(ctx context.Context, uid string, role entity.Role, phoneNumber string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, err := r.profile(uid, role)
	if err != nil {
		return err
	}
	now := r.store.serverTime()
	p.LastLogin = &now
	if phoneNumber != "" {
		p.PhoneNumber = phoneNumber
	}
	return nil
}

func (r *memoryProfileRepository) AddDeviceToken(ctx context.Context, uid string, role entity.Role, token string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, err := r.profile(uid, role)
	if err != nil {
		return err
	}
	for _, t := range p.FCMTokens {
		if t == token {
			return nil
		}
	}
	p.FCMTokens = append(p.FCMTokens, token)
	return nil
}

func (r *memoryProfileRepository) RemoveDeviceToken(ctx context.Context, uid string, role entity.Role, token string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, err := r.profile(uid, role)
	if err != nil {
		return err
	}
	var kept []string
	for _, t := range p.FCMTokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	p.FCMTokens = kept
	return nil
}

func (r *memoryProfileRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}
