// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"encoding/json"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-uuid"
)

// DefaultTTL is the lifetime of a serialized assertion.
const DefaultTTL = 5 * time.Minute

// JWT is used to create a client assertion JWT, a special JWT used by an OAuth
// 2.0 or OIDC client to authenticate themselves to an authorization server.
// Every call to Serialize produces a fresh token with a unique jti.
type JWT struct {
	clientID string
	audience []string
	headers  map[string]string
	ttl      time.Duration

	alg jose.SignatureAlgorithm
	// key may be any key type that jose.SigningKey accepts for its Key
	key any
	// secret may be used instead of key
	secret string

	// these are overwritten for testing
	genID func() (string, error)
	now   func() time.Time
}

// NewJWT creates a new JWT which will be signed with either a private key or
// client secret.
//
// Supported Options:
//   - WithClientSecret
//   - WithRSAKey
//   - WithKeyID
//   - WithTTL
//
// Either WithRSAKey or WithClientSecret must be used, but not both.
func NewJWT(clientID string, audience []string, opts ...Option) (*JWT, error) {
	const op = "NewJWT"
	j := &JWT{
		clientID: clientID,
		audience: audience,
		headers:  make(map[string]string),
		ttl:      DefaultTTL,
		genID:    uuid.GenerateUUID,
		now:      time.Now,
	}

	var errs *multierror.Error
	if clientID == "" {
		errs = multierror.Append(errs, ErrMissingClientID)
	}
	if len(audience) == 0 {
		errs = multierror.Append(errs, ErrMissingAudience)
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(j); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	switch {
	case j.key == nil && j.secret == "":
		errs = multierror.Append(errs, ErrMissingKeyOrSecret)
	case j.key != nil && j.secret != "":
		errs = multierror.Append(errs, ErrBothKeyAndSecret)
	case j.alg == "":
		errs = multierror.Append(errs, ErrMissingAlgorithm)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// make sure Serialize() works now rather than on the first token request
	if _, err := j.Serialize(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

// Serialize returns a signed client assertion JWT which can be used by an
// OAuth 2.0 or OIDC client to authenticate themselves to an authorization
// server
func (j *JWT) Serialize() (string, error) {
	const op = "JWT.Serialize"
	signer, err := j.signer()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	id, err := j.genID()
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate token id: %w", op, err)
	}
	payload, err := json.Marshal(j.claims(id))
	if err != nil {
		return "", fmt.Errorf("%s: failed to marshal claims: %w", op, err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("%s: failed to sign token: %w", op, err)
	}
	token, err := jws.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("%s: failed to serialize token: %w", op, err)
	}
	return token, nil
}

func (j *JWT) signer() (jose.Signer, error) {
	const op = "JWT.signer"
	sKey := jose.SigningKey{Algorithm: j.alg, Key: j.key}
	if j.secret != "" {
		sKey.Key = []byte(j.secret)
	}

	sOpts := &jose.SignerOptions{
		ExtraHeaders: make(map[jose.HeaderKey]interface{}, len(j.headers)),
	}
	for k, v := range j.headers {
		sOpts.ExtraHeaders[jose.HeaderKey(k)] = v
	}

	signer, err := jose.NewSigner(sKey, sOpts.WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrCreatingSigner, err)
	}
	return signer, nil
}

type assertionClaims struct {
	Issuer    string   `json:"iss"`
	Subject   string   `json:"sub"`
	Audience  []string `json:"aud"`
	Expiry    int64    `json:"exp"`
	NotBefore int64    `json:"nbf"`
	IssuedAt  int64    `json:"iat"`
	ID        string   `json:"jti"`
}

func (j *JWT) claims(id string) assertionClaims {
	now := j.now().UTC()
	return assertionClaims{
		Issuer:    j.clientID,
		Subject:   j.clientID,
		Audience:  j.audience,
		Expiry:    now.Add(j.ttl).Unix(),
		NotBefore: now.Add(-1 * time.Second).Unix(),
		IssuedAt:  now.Unix(),
		ID:        id,
	}
}
