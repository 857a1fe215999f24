// Package memory provides the in-process correlation store. State lives for
// the lifetime of the process and is never persisted.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/botrelay/internal/relay"
)

// RegistrationStore keeps registrations keyed by alt account, then bot name.
type RegistrationStore struct {
	mu   sync.RWMutex
	regs map[string]map[string]relay.Registration
}

var _ relay.RegistrationStore = (*RegistrationStore)(nil)

// NewRegistrationStore constructs a RegistrationStore.
func NewRegistrationStore() *RegistrationStore {
	return &RegistrationStore{
		regs: make(map[string]map[string]relay.Registration),
	}
}

// Put upserts the registration for (AltAccount, BotName).
func (s *RegistrationStore) Put(_ context.Context, reg relay.Registration) error {
	if reg.AltAccount == "" || reg.BotName == "" {
		return fmt.Errorf("registration key incomplete: alt account %q, bot %q", reg.AltAccount, reg.BotName)
	}
	stored := reg.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	bots, ok := s.regs[reg.AltAccount]
	if !ok {
		bots = make(map[string]relay.Registration)
		s.regs[reg.AltAccount] = bots
	}
	bots[reg.BotName] = stored
	return nil
}

// Get fetches the registration for one (alt account, bot) pair.
func (s *RegistrationStore) Get(_ context.Context, altAccount, botName string) (relay.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.regs[altAccount][botName]
	if !ok {
		return relay.Registration{}, fmt.Errorf("%s/%s: %w", altAccount, botName, relay.ErrRegistrationNotFound)
	}
	return reg.Clone(), nil
}

// List returns every registration of altAccount ordered by bot name.
func (s *RegistrationStore) List(_ context.Context, altAccount string) ([]relay.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bots := s.regs[altAccount]
	out := make([]relay.Registration, 0, len(bots))
	for _, reg := range bots {
		out = append(out, reg.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BotName < out[j].BotName })
	return out, nil
}

// Delete removes one registration.
func (s *RegistrationStore) Delete(_ context.Context, altAccount, botName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bots, ok := s.regs[altAccount]
	if !ok {
		return fmt.Errorf("%s/%s: %w", altAccount, botName, relay.ErrRegistrationNotFound)
	}
	if _, ok := bots[botName]; !ok {
		return fmt.Errorf("%s/%s: %w", altAccount, botName, relay.ErrRegistrationNotFound)
	}
	delete(bots, botName)
	if len(bots) == 0 {
		delete(s.regs, altAccount)
	}
	return nil
}

// Accounts returns the alt accounts holding at least one registration, sorted.
func (s *RegistrationStore) Accounts(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]string, 0, len(s.regs))
	for account := range s.regs {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts, nil
}
