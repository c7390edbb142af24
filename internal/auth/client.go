// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth builds authenticated HTTP clients for the SMS bridge and the
// wallet backend.
package auth

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mywallet/ingestion/internal/config"
)

// HTTPClient returns a client for cfg:
//   - TokenURL set: OAuth2 client credentials, tokens refreshed automatically
//   - Token set: static bearer token
//   - neither: unauthenticated
func HTTPClient(ctx context.Context, cfg config.AuthConfig, timeout time.Duration) *http.Client {
	var client *http.Client
	switch {
	case cfg.TokenURL != "":
		creds := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		client = creds.Client(ctx)
	case cfg.Token != "":
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
		client = oauth2.NewClient(ctx, src)
	default:
		client = &http.Client{}
	}
	client.Timeout = timeout
	return client
}

// Mode names the authentication mode for logs.
func Mode(cfg config.AuthConfig) string {
	switch {
	case cfg.TokenURL != "":
		return "client_credentials"
	case cfg.Token != "":
		return "static_token"
	default:
		return "none"
	}
}
