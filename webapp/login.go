// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package webapp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/oidc-webapp-demo/cache"
	"github.com/hashicorp/oidc-webapp-demo/oidc"
	"github.com/hashicorp/oidc-webapp-demo/oidc/callback"
	"github.com/hashicorp/oidc-webapp-demo/security"
	"github.com/hashicorp/oidc-webapp-demo/session"
)

const defaultReturnTo = "/code-flow"

// loginRequest is an oidc.Request which also knows where the user was
// going.
type loginRequest struct {
	oidc.Request
	returnTo string
}

// pendingReader reads the pending logins for the callback. Each login can be
// read once.
type pendingReader struct {
	logins *cache.PendingLogins
}

var _ callback.RequestReader = (*pendingReader)(nil)

func (pr *pendingReader) Read(_ context.Context, state string) (oidc.Request, error) {
	const op = "pendingReader.Read"
	p, ok := pr.logins.Take(state)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrNotFound)
	}
	return &loginRequest{Request: p.Request, returnTo: p.ReturnTo}, nil
}

// loginSucceeded creates the session of a completed login.
func (s *Server) loginSucceeded(state string, r oidc.Request, t oidc.Token, w http.ResponseWriter, req *http.Request) {
	const op = "Server.loginSucceeded"
	ctx := req.Context()

	var claims map[string]interface{}
	if err := t.IDToken().Claims(&claims); err != nil {
		s.loginFailed(state, nil, fmt.Errorf("%s: %w", op, err), w, req)
		return
	}
	sub, _ := claims["sub"].(string)
	sid, _ := claims["sid"].(string)

	var userInfo map[string]interface{}
	if s.cfg.OIDC.UserInfoRequired {
		ts, ok := t.(oidc.StaticTokenSource)
		if !ok {
			s.loginFailed(state, nil, fmt.Errorf("%s: token has no token source: %w", op, oidc.ErrInvalidParameter), w, req)
			return
		}
		if err := s.provider.UserInfo(ctx, ts.StaticTokenSource(), sub, &userInfo); err != nil {
			s.loginFailed(state, nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		s.cache.AddUserInfo(t.AccessToken(), userInfo)
	}

	sess, err := session.NewSession(sub, s.cfg.Session.MaxAge,
		session.WithSID(sid),
		session.WithPrincipal(principalName(s.cfg.OIDC.PrincipalClaim, claims, userInfo)),
		session.WithTokens(string(t.IDToken()), string(t.AccessToken())),
		session.WithClaims(claims),
		session.WithNow(s.now),
	)
	if err != nil {
		s.loginFailed(state, nil, fmt.Errorf("%s: %w", op, err), w, req)
		return
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		s.logger.Named("auth").Error("unable to store session", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	s.setSessionCookie(w, sess)
	s.publish(ctx, security.Event{
		Type:       security.OIDCLogin,
		SessionID:  sess.ID,
		Subject:    sess.Subject,
		Properties: map[string]string{"sid": sid},
	})

	returnTo := defaultReturnTo
	if lr, ok := r.(*loginRequest); ok && localPath(lr.returnTo) {
		returnTo = lr.returnTo
	}
	http.Redirect(w, req, returnTo, http.StatusFound)
}

// loginFailed answers a failed callback with 401.
func (s *Server) loginFailed(state string, respErr *callback.AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
	props := map[string]string{}
	switch {
	case respErr != nil:
		props["error"] = respErr.Error
		if respErr.Description != "" {
			props["error_description"] = respErr.Description
		}
	case e != nil:
		props["error"] = e.Error()
	}
	s.logger.Named("auth").Warn("authentication failed", "state", state, "error", props["error"])
	s.publish(req.Context(), security.Event{Type: security.AuthenticationFailure, Properties: props})
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

// localPath reports whether p is a path on this server, so the redirect
// after login can't leave the site.
func localPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "/\\")
}
