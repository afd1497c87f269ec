package repository

import (
	"github.com/yashrajoria/docstore-service/events"
	"github.com/yashrajoria/docstore-service/models"
	"github.com/yashrajoria/docstore-service/store"
)

// Provider hands out repositories for a dbType. Repositories are built once
// per backend and shared by all requests.
type Provider struct {
	carts     map[string]*CartRepository
	documents map[string]map[string]*DocumentRepository
}

func NewProvider(registry *store.Registry, notifier events.Notifier, cartAttempts int) *Provider {
	p := &Provider{
		carts:     make(map[string]*CartRepository),
		documents: make(map[string]map[string]*DocumentRepository),
	}
	for _, backend := range registry.Backends() {
		p.carts[backend.Name()] = NewCartRepository(backend, notifier, cartAttempts)
		p.documents[backend.Name()] = map[string]*DocumentRepository{
			models.KindProduct.Name: NewDocumentRepository(backend, models.KindProduct, notifier),
			models.KindUser.Name:    NewDocumentRepository(backend, models.KindUser, notifier),
		}
	}
	return p
}

func unknownBackend() error {
	return &Error{Msg: store.ErrUnknownBackend.Error(), Err: store.ErrUnknownBackend}
}

// Carts returns the cart repository for dbType.
func (p *Provider) Carts(dbType string) (CartStore, error) {
	repo, ok := p.carts[dbType]
	if !ok {
		return nil, unknownBackend()
	}
	return repo, nil
}

// Documents returns the repository for kind on dbType. Carts resolve to the
// cart repository so creates are validated.
func (p *Provider) Documents(kind models.Kind, dbType string) (DocumentStore, error) {
	if kind == models.KindCart {
		return p.Carts(dbType)
	}
	repos, ok := p.documents[dbType]
	if !ok {
		return nil, unknownBackend()
	}
	repo, ok := repos[kind.Name]
	if !ok {
		return nil, unknownBackend()
	}
	return repo, nil
}
