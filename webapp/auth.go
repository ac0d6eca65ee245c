// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package webapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/oidc-webapp-demo/cache"
	"github.com/hashicorp/oidc-webapp-demo/oidc"
	"github.com/hashicorp/oidc-webapp-demo/security"
	"github.com/hashicorp/oidc-webapp-demo/session"
)

// Identity is the authenticated user of a request.
type Identity struct {
	SessionID string
	Subject   string
	// Principal is the user's display name.
	Principal string
	Claims    map[string]interface{}
	// UserInfo is nil unless user info is fetched at login.
	UserInfo map[string]interface{}
}

type identityKey struct{}

// IdentityFromContext returns the Identity put in ctx by the authentication
// gate.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok
}

func withIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// authenticate only lets requests with a valid session through. Everyone
// else is sent to the provider to log in.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := s.logger.Named("auth")

		sess, err := s.currentSession(ctx, r)
		switch {
		case err == nil:
		case errors.Is(err, session.ErrExpired):
			s.publish(ctx, security.Event{Type: security.OIDCSessionExpired, SessionID: sessionCookieValue(r, s.cfg.Session.CookieName)})
			s.startLogin(w, r)
			return
		case errors.Is(err, errNoSession), errors.Is(err, session.ErrNotFound):
			s.startLogin(w, r)
			return
		default:
			logger.Error("unable to read session", "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if s.cfg.OIDC.VerifyAccessToken {
			active, err := s.accessTokenActive(ctx, sess)
			if err != nil {
				logger.Error("unable to verify access token", "session_id", sess.ID, "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !active {
				s.publish(ctx, security.Event{Type: security.AccessTokenInactive, SessionID: sess.ID, Subject: sess.Subject})
				s.endSession(ctx, w, sess)
				s.startLogin(w, r)
				return
			}
		}

		id := &Identity{
			SessionID: sess.ID,
			Subject:   sess.Subject,
			Principal: sess.Principal,
			Claims:    sess.Claims,
		}
		if info, ok := s.cache.GetUserInfo(oidc.AccessToken(sess.AccessToken)); ok {
			id.UserInfo = info
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(ctx, id)))
	})
}

// startLogin remembers where the user wanted to go and redirects to the
// provider's authorization endpoint.
func (s *Server) startLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := s.logger.Named("auth")

	var opts []oidc.Option
	if s.cfg.OIDC.PKCE {
		opts = append(opts, oidc.WithPKCE())
	}
	if locales, err := s.cfg.OIDC.Locales(); err == nil && len(locales) > 0 {
		opts = append(opts, oidc.WithUILocales(locales...))
	}
	req, err := oidc.NewRequest(s.cfg.OIDC.StateExpiry, s.cfg.RedirectURL(), opts...)
	if err != nil {
		logger.Error("unable to create authentication request", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	authURL, err := s.provider.AuthURL(ctx, req)
	if err != nil {
		logger.Error("unable to create auth url", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := s.pending.Add(cache.PendingLogin{Request: req, ReturnTo: r.URL.RequestURI()}); err != nil {
		logger.Error("unable to remember authentication request", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) currentSession(ctx context.Context, r *http.Request) (*session.Session, error) {
	const op = "Server.currentSession"
	id := sessionCookieValue(r, s.cfg.Session.CookieName)
	if id == "" {
		return nil, fmt.Errorf("%s: %w", op, errNoSession)
	}
	sess, err := s.sessions.Read(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// accessTokenActive asks the provider (or the cache) whether the session's
// access token is still active.
func (s *Server) accessTokenActive(ctx context.Context, sess *session.Session) (bool, error) {
	const op = "Server.accessTokenActive"
	if sess.AccessToken == "" {
		return false, nil
	}
	at := oidc.AccessToken(sess.AccessToken)
	now := s.now()
	if i, ok := s.cache.GetIntrospection(at); ok && i.IsActive(now) {
		return true, nil
	}
	i, err := s.provider.Introspect(ctx, at)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if !i.IsActive(now) {
		return false, nil
	}
	s.cache.AddIntrospection(at, i)
	return true, nil
}

// endSession removes sess, its cached token data and the session cookie.
func (s *Server) endSession(ctx context.Context, w http.ResponseWriter, sess *session.Session) {
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		s.logger.Named("auth").Error("unable to delete session", "session_id", sess.ID, "error", err)
	}
	s.cache.Remove(oidc.AccessToken(sess.AccessToken))
	s.clearSessionCookie(w)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(s.cfg.Session.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionCookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// principalName picks the user's display name. The configured claim wins,
// then upn, preferred_username and finally sub. Earlier claim sets take
// precedence.
func principalName(claim string, claimSets ...map[string]interface{}) string {
	names := []string{"upn", "preferred_username", "sub"}
	if claim != "" {
		names = append([]string{claim}, names...)
	}
	for _, n := range names {
		for _, claims := range claimSets {
			if v, ok := claims[n].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}
