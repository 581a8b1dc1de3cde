package auth

import "golang.org/x/oauth2/clientcredentials"

// Conf represents the configuration needed for authentication against the
// requirement feed. It includes the client ID, client secret, the token URL
// and the scopes the feed API expects.
type Conf struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURL      string   `json:"auth_url"`
	Scopes       []string `json:"scopes"`
}

// Enabled reports whether credentials are configured at all. The mock feed
// runs without any.
func (c *Conf) Enabled() bool {
	return c.ClientID != "" && c.AuthURL != ""
}

func (c *Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.AuthURL,
		Scopes:       c.Scopes,
	}
}
