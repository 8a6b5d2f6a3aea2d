package testutil

import (
	"context"
	"net/url"
	"sync/atomic"

	"github.com/dgellow/docfront/internal/idp"
	"golang.org/x/oauth2"
)

// FakeProvider is an in-process idp.Provider standing in for GitHub
type FakeProvider struct {
	Identity      *idp.Identity
	Installs      []idp.InstallationInfo
	ExchangeErr   error
	UserErr       error
	InstallErr    error
	exchanged     atomic.Int32
	lastExchanged atomic.Value // string
}

var _ idp.Provider = (*FakeProvider)(nil)

// NewFakeProvider returns a provider that authenticates everyone as identity
func NewFakeProvider(identity *idp.Identity, installs ...idp.InstallationInfo) *FakeProvider {
	return &FakeProvider{Identity: identity, Installs: installs}
}

func (p *FakeProvider) Type() string { return "github" }

func (p *FakeProvider) AuthURL(state string) string {
	return "https://github.example/login/oauth/authorize?client_id=test&state=" + url.QueryEscape(state)
}

func (p *FakeProvider) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	p.exchanged.Add(1)
	p.lastExchanged.Store(code)
	if p.ExchangeErr != nil {
		return nil, p.ExchangeErr
	}
	return &oauth2.Token{AccessToken: "token-for-" + code}, nil
}

func (p *FakeProvider) UserInfo(_ context.Context, _ *oauth2.Token) (*idp.Identity, error) {
	if p.UserErr != nil {
		return nil, p.UserErr
	}
	return p.Identity, nil
}

func (p *FakeProvider) Installations(_ context.Context, _ *oauth2.Token) ([]idp.InstallationInfo, error) {
	if p.InstallErr != nil {
		return nil, p.InstallErr
	}
	return p.Installs, nil
}

// Exchanged reports how many codes were exchanged
func (p *FakeProvider) Exchanged() int {
	return int(p.exchanged.Load())
}

// LastCode is the most recently exchanged authorization code
func (p *FakeProvider) LastCode() string {
	code, _ := p.lastExchanged.Load().(string)
	return code
}
