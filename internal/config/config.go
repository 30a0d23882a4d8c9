package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgeparams/internal/paramsrv"
	"github.com/danmuck/edgeparams/internal/protocol/session"
	"github.com/danmuck/edgeparams/internal/transport"
)

var ErrInvalidConfig = errors.New("config: invalid")

// NodeConfig is the resolved configuration of a parameter node daemon.
type NodeConfig struct {
	Name      string
	Namespace string
	DomainID  uint32

	Mode               transport.Mode
	Locator            transport.Locator
	MaxConnectAttempts int

	ReplyBufSize int
	// TypeHashes overrides the advertised type hash per service suffix.
	TypeHashes map[string]string

	ParamsFile  string
	WatchParams bool

	AdminAddr   string
	AdminToken  string
	CorsOrigins []string
	Metrics     bool
	Tracing     TracingConfig
	Session     session.Config
}

// TracingConfig enables OTLP/HTTP span export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

// RouterConfig is the resolved configuration of a standalone router.
type RouterConfig struct {
	Locator                transport.Locator
	RequireIdentityBinding bool
	AdminAddr              string
	AdminToken             string
	Tracing                TracingConfig
	Session                session.Config
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Name:         "paramnode",
		Namespace:    "/",
		Mode:         transport.ModePeer,
		Locator:      transport.Locator{Scheme: transport.SchemeTCP, Address: "0.0.0.0:7447"},
		ReplyBufSize: paramsrv.DefaultReplyBufSize,
		TypeHashes:   map[string]string{},
		AdminAddr:    "127.0.0.1:9090",
		Metrics:      true,
		Tracing:      TracingConfig{ServiceName: "paramnode", SampleRatio: 1},
		Session:      session.DefaultConfig(),
	}
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Locator:   transport.Locator{Scheme: transport.SchemeTCP, Address: "0.0.0.0:7447"},
		AdminAddr: "127.0.0.1:9091",
		Tracing:   TracingConfig{ServiceName: "paramrouter", SampleRatio: 1},
		Session:   session.DefaultConfig(),
	}
}

type nodeFile struct {
	Node struct {
		Name      string `toml:"name"`
		Namespace string `toml:"namespace"`
		DomainID  int64  `toml:"domain_id"`
	} `toml:"node"`
	Interface struct {
		Mode               string `toml:"mode"`
		Locator            string `toml:"locator"`
		MaxConnectAttempts int    `toml:"max_connect_attempts"`
	} `toml:"interface"`
	Service struct {
		ReplyBufSize int               `toml:"reply_buf_size"`
		TypeHashes   map[string]string `toml:"type_hashes"`
	} `toml:"service"`
	Parameters struct {
		File  string `toml:"file"`
		Watch bool   `toml:"watch"`
	} `toml:"parameters"`
	Admin struct {
		Addr        string   `toml:"addr"`
		CorsOrigins []string `toml:"cors_origins"`
		Metrics     bool     `toml:"metrics"`
		Token       string   `toml:"token"`
	} `toml:"admin"`
	Tracing tracingFile `toml:"tracing"`
	Session sessionFile `toml:"session"`
}

type routerFile struct {
	Router struct {
		Locator                string `toml:"locator"`
		RequireIdentityBinding bool   `toml:"require_identity_binding"`
		AdminAddr              string `toml:"admin_addr"`
		AdminToken             string `toml:"admin_token"`
	} `toml:"router"`
	Tracing tracingFile `toml:"tracing"`
	Session sessionFile `toml:"session"`
}

type tracingFile struct {
	Endpoint    string  `toml:"endpoint"`
	Insecure    bool    `toml:"insecure"`
	ServiceName string  `toml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio"`
}

type sessionFile struct {
	ConnectTimeout   string `toml:"connect_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
	IdleTimeout      string `toml:"idle_timeout"`
	QueryTimeout     string `toml:"query_timeout"`
	SecurityMode     string `toml:"security_mode"`
	TLS              struct {
		Mutual             bool   `toml:"mutual"`
		CertFile           string `toml:"cert_file"`
		KeyFile            string `toml:"key_file"`
		CAFile             string `toml:"ca_file"`
		ServerName         string `toml:"server_name"`
		InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	} `toml:"tls"`
}

// LoadNodeConfig overlays the keys defined in path onto DefaultNodeConfig.
// A relative parameters.file is resolved against the config's directory.
func LoadNodeConfig(path string) (NodeConfig, error) {
	var raw nodeFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := nodeFromFile(raw, meta)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if cfg.ParamsFile != "" && !filepath.IsAbs(cfg.ParamsFile) {
		cfg.ParamsFile = filepath.Join(filepath.Dir(path), cfg.ParamsFile)
	}
	return cfg, nil
}

// ParseNodeConfig is LoadNodeConfig over an in-memory document.
func ParseNodeConfig(data string) (NodeConfig, error) {
	var raw nodeFile
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config parse failed: %w", err)
	}
	return nodeFromFile(raw, meta)
}

func nodeFromFile(raw nodeFile, meta toml.MetaData) (NodeConfig, error) {
	cfg := DefaultNodeConfig()
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return NodeConfig{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("node", "name") {
		cfg.Name = strings.TrimSpace(raw.Node.Name)
	}
	if meta.IsDefined("node", "namespace") {
		cfg.Namespace = strings.TrimSpace(raw.Node.Namespace)
	}
	if meta.IsDefined("node", "domain_id") {
		if raw.Node.DomainID < 0 || raw.Node.DomainID > int64(^uint32(0)) {
			return NodeConfig{}, fmt.Errorf("%w: domain_id %d", ErrInvalidConfig, raw.Node.DomainID)
		}
		cfg.DomainID = uint32(raw.Node.DomainID)
	}

	if meta.IsDefined("interface", "mode") {
		mode, err := transport.ParseMode(raw.Interface.Mode)
		if err != nil {
			return NodeConfig{}, err
		}
		cfg.Mode = mode
	}
	if meta.IsDefined("interface", "locator") {
		loc, err := transport.ParseLocator(raw.Interface.Locator)
		if err != nil {
			return NodeConfig{}, err
		}
		cfg.Locator = loc
	}
	if meta.IsDefined("interface", "max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.Interface.MaxConnectAttempts
	}

	if meta.IsDefined("service", "reply_buf_size") {
		cfg.ReplyBufSize = raw.Service.ReplyBufSize
	}
	if meta.IsDefined("service", "type_hashes") {
		for service, hash := range raw.Service.TypeHashes {
			cfg.TypeHashes[strings.TrimSpace(service)] = strings.TrimSpace(hash)
		}
	}

	if meta.IsDefined("parameters", "file") {
		cfg.ParamsFile = strings.TrimSpace(raw.Parameters.File)
	}
	if meta.IsDefined("parameters", "watch") {
		cfg.WatchParams = raw.Parameters.Watch
	}

	if meta.IsDefined("admin", "addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.CorsOrigins = raw.Admin.CorsOrigins
	}
	if meta.IsDefined("admin", "token") {
		cfg.AdminToken = strings.TrimSpace(raw.Admin.Token)
	}
	if meta.IsDefined("admin", "metrics") {
		cfg.Metrics = raw.Admin.Metrics
	}

	applyTracing(&cfg.Tracing, raw.Tracing, meta)
	if err := applySession(&cfg.Session, raw.Session, meta); err != nil {
		return NodeConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

// LoadRouterConfig overlays the keys defined in path onto
// DefaultRouterConfig.
func LoadRouterConfig(path string) (RouterConfig, error) {
	var raw routerFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return RouterConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := DefaultRouterConfig()
	if meta.IsDefined("router", "locator") {
		loc, err := transport.ParseLocator(raw.Router.Locator)
		if err != nil {
			return RouterConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		cfg.Locator = loc
	}
	if meta.IsDefined("router", "require_identity_binding") {
		cfg.RequireIdentityBinding = raw.Router.RequireIdentityBinding
	}
	if meta.IsDefined("router", "admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.Router.AdminAddr)
	}
	if meta.IsDefined("router", "admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.Router.AdminToken)
	}
	applyTracing(&cfg.Tracing, raw.Tracing, meta)
	if err := applySession(&cfg.Session, raw.Session, meta); err != nil {
		return RouterConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.Session.TLS.Enabled = cfg.Locator.Secure()
	if err := cfg.Session.ValidateServerTransport(); err != nil {
		return RouterConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

func applyTracing(cfg *TracingConfig, raw tracingFile, meta toml.MetaData) {
	if meta.IsDefined("tracing", "endpoint") {
		cfg.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("tracing", "insecure") {
		cfg.Insecure = raw.Insecure
	}
	if meta.IsDefined("tracing", "service_name") {
		cfg.ServiceName = strings.TrimSpace(raw.ServiceName)
	}
	if meta.IsDefined("tracing", "sample_ratio") {
		cfg.SampleRatio = raw.SampleRatio
	}
}

func applySession(cfg *session.Config, raw sessionFile, meta toml.MetaData) error {
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", raw.IdleTimeout, &cfg.IdleTimeout},
		{"query_timeout", raw.QueryTimeout, &cfg.QueryTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("session", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse session.%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("session", "security_mode") {
		cfg.SecurityMode = session.NormalizeSecurityMode(session.SecurityMode(raw.SecurityMode))
	}
	if meta.IsDefined("session", "tls", "mutual") {
		cfg.TLS.Mutual = raw.TLS.Mutual
	}
	if meta.IsDefined("session", "tls", "cert_file") {
		cfg.TLS.CertFile = strings.TrimSpace(raw.TLS.CertFile)
	}
	if meta.IsDefined("session", "tls", "key_file") {
		cfg.TLS.KeyFile = strings.TrimSpace(raw.TLS.KeyFile)
	}
	if meta.IsDefined("session", "tls", "ca_file") {
		cfg.TLS.CAFile = strings.TrimSpace(raw.TLS.CAFile)
	}
	if meta.IsDefined("session", "tls", "server_name") {
		cfg.TLS.ServerName = strings.TrimSpace(raw.TLS.ServerName)
	}
	if meta.IsDefined("session", "tls", "insecure_skip_verify") {
		cfg.TLS.InsecureSkipVerify = raw.TLS.InsecureSkipVerify
	}
	return nil
}

// Validate checks the fields a node cannot start without.
func (c NodeConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" || strings.Contains(c.Name, "/") {
		return fmt.Errorf("%w: node name %q", ErrInvalidConfig, c.Name)
	}
	if c.ReplyBufSize <= 0 {
		return fmt.Errorf("%w: reply_buf_size %d", ErrInvalidConfig, c.ReplyBufSize)
	}
	if c.WatchParams && c.ParamsFile == "" {
		return fmt.Errorf("%w: parameters.watch requires parameters.file", ErrInvalidConfig)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("%w: tracing.sample_ratio %g", ErrInvalidConfig, c.Tracing.SampleRatio)
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s := c.Session
	s.TLS.Enabled = c.Locator.Secure()
	if c.Mode == transport.ModeClient {
		return s.ValidateClientTransport()
	}
	return s.ValidateServerTransport()
}
