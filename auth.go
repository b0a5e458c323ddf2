package mirror

// JWT issuer settings for sessions minted by the provider.
const (
	providerIssuer = "https://api.workos.com/"
	jwksURLPrefix  = "https://api.workos.com/sso/jwks/"
)

// AuthProvider describes one JWT issuer an application should trust for
// provider-issued session tokens.
type AuthProvider struct {
	Type          string `json:"type"`
	Issuer        string `json:"issuer"`
	Algorithm     string `json:"algorithm"`
	JWKS          string `json:"jwks"`
	ApplicationID string `json:"applicationID,omitempty"`
}

// AuthProviders returns the SSO and user-management issuers for the
// configured client id. Both share the client's JWKS.
func (m *Mirror) AuthProviders() []AuthProvider {
	clientID := m.config.ClientID
	jwks := jwksURLPrefix + clientID
	return []AuthProvider{
		{
			Type:          "customJwt",
			Issuer:        providerIssuer,
			Algorithm:     "RS256",
			JWKS:          jwks,
			ApplicationID: clientID,
		},
		{
			Type:      "customJwt",
			Issuer:    providerIssuer + "user_management/" + clientID,
			Algorithm: "RS256",
			JWKS:      jwks,
		},
	}
}
