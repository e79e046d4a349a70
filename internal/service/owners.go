package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"tradehook/internal/broker"
	"tradehook/internal/models"
	"tradehook/internal/repository"
	"tradehook/internal/strategy"
)

var (
	ErrOwnerNotFound    = errors.New("owner not found")
	ErrInvalidBrokerURL = errors.New("invalid broker url")
)

// OwnerService is the tenant registry. It also resolves broker endpoints:
// statically configured URLs win over stored ones.
type OwnerService struct {
	Repo      repository.Repository
	Static    map[string]string
	Directory *strategy.Directory
	Persister *Persister
	Logger    *zap.Logger
}

type OwnerView struct {
	Username   string `json:"username"`
	BrokerURL  string `json:"broker_url,omitempty"`
	Configured bool   `json:"configured"`
	Strategies int    `json:"strategies"`
}

func (s *OwnerService) ResolveEndpoint(ctx context.Context, owner string) (string, error) {
	if s == nil {
		return "", broker.ErrNoEndpoint
	}
	if endpoint, err := broker.StaticResolver(s.Static).ResolveEndpoint(ctx, owner); err == nil {
		return endpoint, nil
	}
	if s.Repo == nil {
		return "", broker.ErrNoEndpoint
	}
	row, err := s.Repo.GetOwner(ctx, owner)
	if err != nil {
		return "", err
	}
	if row == nil || strings.TrimSpace(row.BrokerURL) == "" {
		return "", broker.ErrNoEndpoint
	}
	return row.BrokerURL, nil
}

// Upsert registers an owner or changes its broker URL.
func (s *OwnerService) Upsert(ctx context.Context, username, brokerURL string) (OwnerView, error) {
	if err := strategy.ValidateName(username); err != nil {
		return OwnerView{}, err
	}
	brokerURL = strings.TrimSpace(brokerURL)
	if brokerURL != "" {
		u, err := url.Parse(brokerURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return OwnerView{}, fmt.Errorf("%w: %q", ErrInvalidBrokerURL, brokerURL)
		}
	}
	row := &models.Owner{Username: normalizeKey(username), BrokerURL: brokerURL}
	if s.Repo != nil {
		if err := s.Repo.UpsertOwner(ctx, row); err != nil {
			return OwnerView{}, err
		}
	}
	if s.Logger != nil {
		s.Logger.Info("owner saved", zap.String("owner", row.Username), zap.Bool("has_broker_url", brokerURL != ""))
	}
	return s.view(ctx, row.Username, brokerURL), nil
}

func (s *OwnerService) Get(ctx context.Context, username string) (OwnerView, error) {
	username = normalizeKey(username)
	var brokerURL string
	found := false
	if s.Repo != nil {
		row, err := s.Repo.GetOwner(ctx, username)
		if err != nil {
			return OwnerView{}, err
		}
		if row != nil {
			found = true
			brokerURL = row.BrokerURL
		}
	}
	if !found && s.Directory != nil && len(s.Directory.List(username)) > 0 {
		found = true
	}
	if !found {
		if _, ok := s.Static[username]; ok {
			found = true
		}
	}
	if !found {
		return OwnerView{}, fmt.Errorf("%w: %s", ErrOwnerNotFound, username)
	}
	return s.view(ctx, username, brokerURL), nil
}

// List returns stored owners plus any owner known only through strategies
// or static configuration.
func (s *OwnerService) List(ctx context.Context) ([]OwnerView, error) {
	seen := map[string]string{}
	var order []string
	add := func(name, brokerURL string) {
		name = normalizeKey(name)
		if name == "" || name == "*" {
			return
		}
		if _, ok := seen[name]; !ok {
			order = append(order, name)
		}
		if brokerURL != "" || seen[name] == "" {
			seen[name] = brokerURL
		}
	}
	if s.Repo != nil {
		rows, err := s.Repo.ListOwners(ctx)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			add(row.Username, row.BrokerURL)
		}
	}
	if s.Directory != nil {
		for _, st := range s.Directory.All() {
			add(st.Owner(), "")
		}
	}
	for name := range s.Static {
		add(name, "")
	}
	sort.Strings(order)
	out := make([]OwnerView, 0, len(order))
	for _, name := range order {
		out = append(out, s.view(ctx, name, seen[name]))
	}
	return out, nil
}

// Delete removes the owner and all of its strategies.
func (s *OwnerService) Delete(ctx context.Context, username string) (int, error) {
	username = normalizeKey(username)
	removed := 0
	err := s.Persister.Exclusive(func() error {
		if s.Repo != nil {
			if err := s.Repo.DeleteOwner(ctx, username); err != nil {
				return err
			}
		}
		if s.Directory != nil {
			removed = s.Directory.DeleteOwner(username)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.Persister.ForgetOwner(username)
	if s.Logger != nil {
		s.Logger.Info("owner deleted", zap.String("owner", username), zap.Int("strategies", removed))
	}
	return removed, nil
}

func (s *OwnerService) view(ctx context.Context, username, brokerURL string) OwnerView {
	v := OwnerView{Username: username, BrokerURL: brokerURL}
	if endpoint, err := s.ResolveEndpoint(ctx, username); err == nil && endpoint != "" {
		v.Configured = true
	}
	if s.Directory != nil {
		v.Strategies = len(s.Directory.List(username))
	}
	return v
}
