package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/jwtauth"

	"github.com/medchain/provenance/pkg/provenance"
)

// The auth gateway verifies a wallet signature challenge and issues a
// JWT carrying the verified address. This layer only consumes that
// output contract: it never re-verifies signatures itself.

const identityClaim = "address"

// NewTokenAuth builds the JWT verifier for gateway-issued tokens.
func NewTokenAuth(secret []byte) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", secret, nil)
}

// IssueToken encodes a bearer token for a verified identity. Intended
// for the gateway side and for tests.
func IssueToken(ta *jwtauth.JWTAuth, identity provenance.Identity) (string, error) {
	_, token, err := ta.Encode(map[string]interface{}{identityClaim: string(identity)})
	return token, err
}

// identityFromRequest extracts the verified wallet address from the
// request's JWT claims.
func identityFromRequest(r *http.Request) (provenance.Identity, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", err
	}
	addr, ok := claims[identityClaim].(string)
	if !ok || addr == "" {
		return "", errors.New("token carries no address claim")
	}
	return provenance.NormalizeIdentity(addr), nil
}
