// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package demo_test

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/oidc-webapp-demo/config"
	"github.com/hashicorp/oidc-webapp-demo/oidc"
	"github.com/hashicorp/oidc-webapp-demo/security"
	"github.com/hashicorp/oidc-webapp-demo/webapp"
)

func Example_webapp() {
	// Load the configuration from a file and the environment
	cfg, err := config.Load("webapp.yaml")
	if err != nil {
		// handle error
	}

	// Create a provider from the OIDC section
	pc, err := cfg.ProviderConfig()
	if err != nil {
		// handle error
	}
	p, err := oidc.NewProvider(pc)
	if err != nil {
		// handle error
	}
	defer p.Done()

	// Security events are published to a dispatcher. The server subscribes a
	// logging listener itself; more can be added.
	logger := hclog.Default()
	events := security.NewDispatcher(security.WithLogger(logger))
	_ = events.Subscribe("audit", security.ListenerFunc(func(_ context.Context, e security.Event) error {
		fmt.Println("audit:", e.Type, e.SessionID)
		return nil
	}))

	s, err := webapp.NewServer(cfg, p, webapp.WithLogger(logger), webapp.WithDispatcher(events))
	if err != nil {
		// handle error
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		// handle error
	}
}

func Example_logoutToken() {
	ctx := context.Background()

	pc, err := oidc.NewConfig(
		"http://your-issuer.com/",
		"your_client_id",
		"your_client_secret",
		[]oidc.Alg{oidc.RS256},
		[]string{"http://your_redirect_url/callback"},
	)
	if err != nil {
		// handle error
	}
	p, err := oidc.NewProvider(pc)
	if err != nil {
		// handle error
	}
	defer p.Done()

	// Verify the logout_token the provider posted to the back-channel
	// logout endpoint.
	var req *http.Request
	lt, err := p.VerifyLogoutToken(ctx, req.PostFormValue("logout_token"))
	if err != nil {
		// handle error
	}
	fmt.Println("logout of session", lt.SessionID, "for", lt.Subject)
}
