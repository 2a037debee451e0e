package mastodon

import "github.com/goliatone/go-mastodon/core"

const ProviderID = "mastodon"

// Provider registers the Mastodon access-token credential with core.Service.
type Provider struct {
	id         string
	descriptor core.CredentialDescriptor
}

func New() *Provider {
	return &Provider{id: ProviderID, descriptor: TokenCredentialDescriptor()}
}

func (p *Provider) ID() string {
	if p == nil {
		return ""
	}
	return p.id
}

func (*Provider) AuthKind() string {
	return core.AuthKindToken
}

func (p *Provider) Descriptor() core.CredentialDescriptor {
	if p == nil {
		return core.CredentialDescriptor{}
	}
	descriptor := p.descriptor
	descriptor.Fields = append([]core.CredentialField(nil), p.descriptor.Fields...)
	return descriptor
}

func (*Provider) Signer() core.Signer {
	return core.BearerTokenSigner{}
}

var (
	_ core.Provider       = (*Provider)(nil)
	_ core.ProviderSigner = (*Provider)(nil)
)
