// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/oidc-webapp-demo/oidc"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Client authentication methods for the token and introspection endpoints.
const (
	ClientSecretBasic = "client_secret_basic"
	ClientSecretJWT   = "client_secret_jwt"
	PrivateKeyJWT     = "private_key_jwt"
)

// Session stores.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the web application's configuration.
type Config struct {
	Addr        string `yaml:"addr" validate:"required"`
	ExternalURL string `yaml:"external-url" validate:"required,url"`
	LogLevel    string `yaml:"log-level" validate:"oneof=trace debug info warn error"`
	LogJSON     bool   `yaml:"log-json"`

	OIDC    OIDC    `yaml:"oidc"`
	Session Session `yaml:"session"`
	Cache   Cache   `yaml:"cache"`
	Logout  Logout  `yaml:"logout"`
	Redis   Redis   `yaml:"redis"`
}

// OIDC configures the relying party.
type OIDC struct {
	Issuer           string   `yaml:"issuer" validate:"required,url"`
	ClientID         string   `yaml:"client-id" validate:"required"`
	ClientSecret     string   `yaml:"client-secret"`
	ClientAuthMethod string   `yaml:"client-auth-method" validate:"oneof=client_secret_basic client_secret_jwt private_key_jwt"`
	ClientAssertAlg  string   `yaml:"client-assertion-alg"`
	PrivateKeyFile   string   `yaml:"private-key-file"`
	PrivateKeyID     string   `yaml:"private-key-id"`
	ProviderCAFile   string   `yaml:"provider-ca-file"`
	SigningAlgs      []string `yaml:"signing-algs" validate:"min=1"`
	Scopes           []string `yaml:"scopes"`
	Audiences        []string `yaml:"audiences"`
	RedirectPath     string   `yaml:"redirect-path" validate:"startswith=/"`

	PKCE      bool     `yaml:"pkce"`
	UILocales []string `yaml:"ui-locales"`

	StateExpiry       time.Duration `yaml:"state-expiry" validate:"gt=0"`
	PrincipalClaim    string        `yaml:"principal-claim"`
	VerifyAccessToken bool          `yaml:"verify-access-token"`
	UserInfoRequired  bool          `yaml:"user-info-required"`
}

// Session configures the session cookie and store.
type Session struct {
	CookieName   string        `yaml:"cookie-name" validate:"required"`
	CookieSecure bool          `yaml:"cookie-secure"`
	MaxAge       time.Duration `yaml:"max-age" validate:"gt=0"`
	Store        string        `yaml:"store" validate:"oneof=memory redis"`
}

// Cache configures the token introspection cache.
type Cache struct {
	MaxSize int           `yaml:"max-size" validate:"gt=0"`
	TTL     time.Duration `yaml:"ttl" validate:"gt=0"`
}

// Logout configures logout handling.
type Logout struct {
	BackChannel BackChannel `yaml:"back-channel"`
}

// BackChannel configures the back-channel logout endpoint.
type BackChannel struct {
	// VerifyToken enables verification of the logout token and removal of
	// the sessions it names.
	VerifyToken bool `yaml:"verify-token"`
}

// Redis configures the redis session store.
type Redis struct {
	URL       string `yaml:"url" validate:"omitempty,url"`
	KeyPrefix string `yaml:"key-prefix"`
}

// Default returns a Config holding every default value.
func Default() *Config {
	return &Config{
		Addr:     ":8080",
		LogLevel: "info",
		OIDC: OIDC{
			ClientAuthMethod: ClientSecretBasic,
			SigningAlgs:      []string{string(oidc.RS256)},
			Scopes:           []string{"profile", "email"},
			RedirectPath:     "/callback",
			StateExpiry:      5 * time.Minute,
		},
		Session: Session{
			CookieName: "q_session",
			MaxAge:     30 * time.Minute,
			Store:      StoreMemory,
		},
		Cache: Cache{
			MaxSize: 1000,
			TTL:     3 * time.Minute,
		},
		Redis: Redis{
			KeyPrefix: "webapp:session:",
		},
	}
}

// Load reads the optional YAML file at path over the defaults, applies the
// environment and validates the result.
//
// Supported options: WithLookupEnv
func Load(path string, opt ...Option) (*Config, error) {
	const op = "config.Load"
	opts := getOpts(opt...)
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to read %s: %w", op, path, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("%s: unable to parse %s: %w: %w", op, path, ErrInvalidConfig, err)
		}
	}
	if err := c.applyEnv(opts.withLookupEnv); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if c.ExternalURL == "" {
		c.ExternalURL = defaultExternalURL(c.Addr)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrInvalidParameter)
	}
	var errs *multierror.Error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%s: %w", op, err)
		}
		for _, fe := range verrs {
			errs = multierror.Append(errs, fmt.Errorf("%s: %s", fe.Namespace(), describe(fe)))
		}
	}
	if _, _, err := net.SplitHostPort(c.Addr); c.Addr != "" && err != nil {
		errs = multierror.Append(errs, fmt.Errorf("Config.Addr: %w", err))
	}
	if _, err := oidc.ParseAlgs(c.OIDC.SigningAlgs...); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("Config.OIDC.SigningAlgs: %w", err))
	}
	if _, err := c.OIDC.Locales(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("Config.OIDC.UILocales: %w", err))
	}
	switch c.OIDC.ClientAuthMethod {
	case ClientSecretBasic, ClientSecretJWT:
		if c.OIDC.ClientSecret == "" {
			errs = multierror.Append(errs, fmt.Errorf("Config.OIDC.ClientSecret: required by %s", c.OIDC.ClientAuthMethod))
		}
	case PrivateKeyJWT:
		if c.OIDC.PrivateKeyFile == "" {
			errs = multierror.Append(errs, fmt.Errorf("Config.OIDC.PrivateKeyFile: required by %s", PrivateKeyJWT))
		}
	}
	if c.Session.Store == StoreRedis && c.Redis.URL == "" {
		errs = multierror.Append(errs, errors.New("Config.Redis.URL: required by the redis session store"))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidConfig, err)
	}
	return nil
}

// RedirectURL is the absolute URL of the authorization code callback.
func (c *Config) RedirectURL() string {
	return strings.TrimSuffix(c.ExternalURL, "/") + c.OIDC.RedirectPath
}

// PostLogoutURL is the absolute URL the provider returns to after an RP
// initiated logout.
func (c *Config) PostLogoutURL() string {
	return strings.TrimSuffix(c.ExternalURL, "/") + "/code-flow/post-logout"
}

// LogLevelValue returns the hclog level of LogLevel.
func (c *Config) LogLevelValue() hclog.Level {
	return hclog.LevelFromString(c.LogLevel)
}

// Locales parses UILocales into language tags.
func (o *OIDC) Locales() ([]language.Tag, error) {
	tags := make([]language.Tag, 0, len(o.UILocales))
	for _, l := range o.UILocales {
		t, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", l, err)
		}
		tags = append(tags, t)
	}
	return tags, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	const op = "Config.applyEnv"
	str := map[string]*string{
		"WEBAPP_ADDR":             &c.Addr,
		"WEBAPP_EXTERNAL_URL":     &c.ExternalURL,
		"WEBAPP_LOG_LEVEL":        &c.LogLevel,
		"WEBAPP_REDIS_URL":        &c.Redis.URL,
		"WEBAPP_SESSION_STORE":    &c.Session.Store,
		"OIDC_ISSUER":             &c.OIDC.Issuer,
		"OIDC_CLIENT_ID":          &c.OIDC.ClientID,
		"OIDC_CLIENT_SECRET":      &c.OIDC.ClientSecret,
		"OIDC_CLIENT_AUTH_METHOD": &c.OIDC.ClientAuthMethod,
		"OIDC_PRIVATE_KEY_FILE":   &c.OIDC.PrivateKeyFile,
		"OIDC_PROVIDER_CA_FILE":   &c.OIDC.ProviderCAFile,
		"OIDC_PRINCIPAL_CLAIM":    &c.OIDC.PrincipalClaim,
	}
	for name, field := range str {
		if v, ok := lookup(name); ok {
			*field = v
		}
	}
	list := map[string]*[]string{
		"OIDC_SIGNING_ALGS": &c.OIDC.SigningAlgs,
		"OIDC_SCOPES":       &c.OIDC.Scopes,
		"OIDC_UI_LOCALES":   &c.OIDC.UILocales,
	}
	for name, field := range list {
		if v, ok := lookup(name); ok {
			*field = splitList(v)
		}
	}
	var errs *multierror.Error
	flags := map[string]*bool{
		"WEBAPP_LOG_JSON":                  &c.LogJSON,
		"WEBAPP_COOKIE_SECURE":             &c.Session.CookieSecure,
		"OIDC_PKCE":                        &c.OIDC.PKCE,
		"OIDC_VERIFY_ACCESS_TOKEN":         &c.OIDC.VerifyAccessToken,
		"OIDC_USER_INFO_REQUIRED":          &c.OIDC.UserInfoRequired,
		"WEBAPP_BACK_CHANNEL_VERIFY_TOKEN": &c.Logout.BackChannel.VerifyToken,
	}
	for name, field := range flags {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*field = b
	}
	durations := map[string]*time.Duration{
		"WEBAPP_SESSION_MAX_AGE": &c.Session.MaxAge,
		"WEBAPP_CACHE_TTL":       &c.Cache.TTL,
		"OIDC_STATE_EXPIRY":      &c.OIDC.StateExpiry,
	}
	for name, field := range durations {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*field = d
	}
	if v, ok := lookup("WEBAPP_CACHE_MAX_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("WEBAPP_CACHE_MAX_SIZE: %w", err))
		} else {
			c.Cache.MaxSize = n
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidConfig, err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func defaultExternalURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return (&url.URL{Scheme: "http", Host: net.JoinHostPort(host, port)}).String()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("%q must be one of [%s]", fe.Value(), fe.Param())
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	default:
		return fmt.Sprintf("failed the %q check", fe.Tag())
	}
}
