package dataverse

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
	"github.com/FreePeak/dataverse-metadata-mcp/internal/infrastructure/logging"
)

func (b *Backend) endpoint(tenant string) oauth2.Endpoint {
	if tenant == "" {
		tenant = DefaultTenant
	}
	base := fmt.Sprintf("%s/%s/oauth2/v2.0", b.authorityHost, tenant)
	return oauth2.Endpoint{
		AuthURL:       base + "/authorize",
		TokenURL:      base + "/token",
		DeviceAuthURL: base + "/devicecode",
	}
}

// tokenSource returns the token source for the session's auth flavour. ctx
// carries the HTTP client token requests use.
func (b *Backend) tokenSource(ctx context.Context, params domain.ConnectionParams, orgURL string, log *logging.Logger) (oauth2.TokenSource, error) {
	scope := orgURL + "/.default"

	switch auth := params.Auth.(type) {
	case domain.ServicePrincipalAuth:
		cfg := clientcredentials.Config{
			ClientID:     auth.ClientID,
			ClientSecret: auth.ClientSecret,
			TokenURL:     b.endpoint(auth.TenantID).TokenURL,
			Scopes:       []string{scope},
		}
		return cfg.TokenSource(ctx), nil

	case domain.InteractiveAuth:
		clientID := auth.ClientID
		if clientID == "" {
			clientID = DefaultPublicClientID
		}
		cfg := &oauth2.Config{
			ClientID:    clientID,
			Endpoint:    b.endpoint(auth.TenantID),
			RedirectURL: auth.RedirectURI,
			Scopes:      []string{scope, "offline_access"},
		}
		return &deviceTokenSource{ctx: ctx, config: cfg, logger: log}, nil

	default:
		kind := "none"
		if params.Auth != nil {
			kind = string(params.Auth.Kind())
		}
		return nil, domain.NewInvalidAuthConfigError("Unsupported authentication type: " + kind)
	}
}

// deviceTokenSource signs the user in with the device authorization grant the
// first time a token is needed and refreshes it afterwards.
type deviceTokenSource struct {
	ctx    context.Context
	config *oauth2.Config
	logger *logging.Logger

	source oauth2.TokenSource
}

// Token implements oauth2.TokenSource. Callers wrap it in
// oauth2.ReuseTokenSource, which serialises calls.
func (d *deviceTokenSource) Token() (*oauth2.Token, error) {
	if d.source != nil {
		return d.source.Token()
	}

	resp, err := d.config.DeviceAuth(d.ctx)
	if err != nil {
		return nil, errors.Wrap(err, "starting device sign-in")
	}
	d.logger.Warn("Sign-in required", logging.Fields{
		"verification_uri": resp.VerificationURI,
		"user_code":        resp.UserCode,
	})

	token, err := d.config.DeviceAccessToken(d.ctx, resp)
	if err != nil {
		return nil, errors.Wrap(err, "completing device sign-in")
	}
	d.source = d.config.TokenSource(d.ctx, token)
	return token, nil
}
