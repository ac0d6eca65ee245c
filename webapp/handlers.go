// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package webapp

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/hashicorp/oidc-webapp-demo/oidc"
	"github.com/hashicorp/oidc-webapp-demo/security"
	"github.com/hashicorp/oidc-webapp-demo/session"
)

// PostLogoutResult is the text of the post-logout page.
const PostLogoutResult = "All sessions was removed!"

// Back-channel logout outcomes, as counted in metrics.
const (
	outcomeIgnored      = "ignored"
	outcomeMissingToken = "missing_token"
	outcomeInvalidToken = "invalid_token"
	outcomeError        = "error"
	outcomeCompleted    = "completed"
)

// codeFlow greets the authenticated user.
func (s *Server) codeFlow(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	size := s.cache.Size()
	s.logger.Debug("Hello " + id.Principal + ", cache size: " + strconv.Itoa(size))
	s.render(w, "web.html", webPage{Name: id.Principal, CacheSize: size})
}

// postLogout confirms a logout. It needs no session.
func (s *Server) postLogout(w http.ResponseWriter, r *http.Request) {
	s.render(w, "logout.html", logoutPage{Result: PostLogoutResult})
}

// backChannelLogout receives logout notifications from the provider. It
// always answers 200; problems with the logout token are only logged.
func (s *Server) backChannelLogout(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("backChannelLogout: Logout invoked!")
	outcome := outcomeIgnored
	if s.cfg.Logout.BackChannel.VerifyToken {
		outcome = s.processLogoutToken(r.Context(), r.PostFormValue("logout_token"))
	}
	s.metrics.backChannelLogouts.WithLabelValues(outcome).Inc()
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) processLogoutToken(ctx context.Context, raw string) string {
	logger := s.logger.Named("backchannel")
	if raw == "" {
		logger.Warn("logout request without a logout_token")
		return outcomeMissingToken
	}
	lt, err := s.provider.VerifyLogoutToken(ctx, raw)
	if err != nil {
		logger.Warn("invalid logout token", "error", err)
		return outcomeInvalidToken
	}
	s.publish(ctx, security.Event{
		Type:       security.OIDCBackChannelLogoutInitiated,
		Subject:    lt.Subject,
		Properties: map[string]string{"sid": lt.SessionID},
	})

	var deleted []*session.Session
	if lt.SessionID != "" {
		deleted, err = s.sessions.DeleteBySID(ctx, lt.SessionID)
	} else {
		deleted, err = s.sessions.DeleteBySubject(ctx, lt.Subject)
	}
	if err != nil {
		logger.Error("unable to delete sessions", "sid", lt.SessionID, "sub", lt.Subject, "error", err)
		return outcomeError
	}
	for _, sess := range deleted {
		s.cache.Remove(oidc.AccessToken(sess.AccessToken))
	}
	s.publish(ctx, security.Event{
		Type:    security.OIDCBackChannelLogoutCompleted,
		Subject: lt.Subject,
		Properties: map[string]string{
			"sid":      lt.SessionID,
			"sessions": strconv.Itoa(len(deleted)),
		},
	})
	return outcomeCompleted
}

// logout ends the session and, when the provider supports it, the user's
// session at the provider too.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := s.logger.Named("logout")

	var idTokenHint oidc.IDToken
	sess, err := s.currentSession(ctx, r)
	switch {
	case err == nil:
		idTokenHint = oidc.IDToken(sess.IDToken)
		s.endSession(ctx, w, sess)
		s.publish(ctx, security.Event{Type: security.OIDCLogoutRPInitiated, SessionID: sess.ID, Subject: sess.Subject})
	case errors.Is(err, errNoSession), errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
		s.clearSessionCookie(w)
	default:
		logger.Error("unable to read session", "error", err)
		s.clearSessionCookie(w)
	}

	endSessionURL, err := s.provider.EndSessionURL(idTokenHint, s.cfg.PostLogoutURL(), "")
	if err != nil {
		if !errors.Is(err, oidc.ErrEndSessionNotSupported) {
			logger.Error("unable to create end session url", "error", err)
		}
		http.Redirect(w, r, "/code-flow/post-logout", http.StatusFound)
		return
	}
	http.Redirect(w, r, endSessionURL, http.StatusFound)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
