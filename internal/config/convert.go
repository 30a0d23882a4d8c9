package config

import (
	"github.com/danmuck/edgeparams/internal/auth"
	"github.com/danmuck/edgeparams/internal/node"
	"github.com/danmuck/edgeparams/internal/rcl"
	"github.com/danmuck/edgeparams/internal/transport"
)

// NodeIdentity returns the node settings. The observer is left for the
// caller to attach.
func (c NodeConfig) NodeIdentity() node.Config {
	return node.Config{
		Name:      c.Name,
		Namespace: c.Namespace,
		DomainID:  c.DomainID,
	}
}

func (c NodeConfig) TransportConfig() transport.Config {
	return transport.Config{
		Mode:               c.Mode,
		Locator:            c.Locator,
		Session:            c.Session,
		MaxConnectAttempts: c.MaxConnectAttempts,
	}
}

// Registry applies the configured type hash overrides.
func (c NodeConfig) Registry() (*rcl.Registry, error) {
	return rcl.NewRegistry(c.TypeHashes)
}

func (c RouterConfig) TransportConfig() transport.RouterConfig {
	return transport.RouterConfig{
		Session:                c.Session,
		RequireIdentityBinding: c.RequireIdentityBinding,
	}
}

// AdminAuth returns the admin token validator, nil when no token is set.
func AdminAuth(token string) auth.Validator {
	if token == "" {
		return nil
	}
	return auth.StaticToken{Token: token}
}
