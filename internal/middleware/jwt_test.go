package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeToken creates a signed HS256 JWT from the given secret and claims.
func makeToken(secret string, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := token.SignedString([]byte(secret))
	return signed
}

func TestHS256Validator_Validate(t *testing.T) {
	t.Parallel()

	const secret = "test-secret-32-bytes-long-xxxxx"

	tests := []struct {
		name     string
		token    string
		wantErr  bool
		wantSub  string
		wantIss  string
		wantRole string
		wantName *string
		wantAud  []string
	}{
		{
			name: "valid token with all claims",
			token: makeToken(secret, jwt.MapClaims{
				"sub":  "user-123",
				"iss":  "https://auth.example.com",
				"name": "Test User",
				"role": "analyst",
				"aud":  "my-app",
				"exp":  time.Now().Add(time.Hour).Unix(),
			}),
			wantSub:  "user-123",
			wantIss:  "https://auth.example.com",
			wantRole: "analyst",
			wantName: ptrStr("Test User"),
			wantAud:  []string{"my-app"},
		},
		{
			name: "valid token with only subject",
			token: makeToken(secret, jwt.MapClaims{
				"sub": "user-456",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantSub: "user-456",
		},
		{
			name: "audience as list",
			token: makeToken(secret, jwt.MapClaims{
				"sub": "user-789",
				"aud": []string{"app-a", "app-b"},
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantSub: "user-789",
			wantAud: []string{"app-a", "app-b"},
		},
		{
			name: "expired token returns error",
			token: makeToken(secret, jwt.MapClaims{
				"sub": "user-expired",
				"exp": time.Now().Add(-time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "wrong secret returns error",
			token: makeToken("wrong-secret", jwt.MapClaims{
				"sub": "user-wrong",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "RS256 token rejected (wrong signing method)",
			token: func() string {
				key, _ := rsa.GenerateKey(rand.Reader, 2048)
				tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
					"sub": "rsa-user",
					"exp": time.Now().Add(time.Hour).Unix(),
				})
				signed, _ := tok.SignedString(key)
				return signed
			}(),
			wantErr: true,
		},
		{
			name:    "malformed token returns error",
			token:   "not.a.valid.jwt.token",
			wantErr: true,
		},
		{
			name:    "empty token returns error",
			token:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, err := NewHS256Validator(secret)
			require.NoError(t, err)

			claims, err := v.Validate(context.Background(), tt.token)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "token verification failed")
				assert.Nil(t, claims)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, claims)

			assert.Equal(t, tt.wantSub, claims.Subject)
			assert.Equal(t, tt.wantIss, claims.Issuer)

			if tt.wantName != nil {
				require.NotNil(t, claims.Name)
				assert.Equal(t, *tt.wantName, *claims.Name)
			} else {
				assert.Nil(t, claims.Name)
			}
			if tt.wantAud != nil {
				assert.Equal(t, tt.wantAud, claims.Audience)
			} else {
				assert.Nil(t, claims.Audience)
			}
			if tt.wantRole != "" {
				role, _ := claims.Raw["role"].(string)
				assert.Equal(t, tt.wantRole, role)
			}

			// Raw claims are always populated for valid tokens.
			assert.NotNil(t, claims.Raw)
		})
	}
}

func TestNewHS256ValidatorRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewHS256Validator("")
	require.Error(t, err)
}

func TestMintHS256TokenRoundTrip(t *testing.T) {
	t.Parallel()

	const secret = "mint-secret"
	token, err := MintHS256Token(secret, "u_1", "Ada", "admin", time.Hour)
	require.NoError(t, err)

	v, err := NewHS256Validator(secret)
	require.NoError(t, err)

	claims, err := v.Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u_1", claims.Subject)
	require.NotNil(t, claims.Name)
	assert.Equal(t, "Ada", *claims.Name)
	assert.Equal(t, "admin", claims.Raw["role"])
}

func TestNewOIDCValidatorFromJWKS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		issuerURL      string
		allowedIssuers []string
		wantIssuers    map[string]bool
	}{
		{
			name:           "populates allowed issuers from list",
			issuerURL:      "https://auth.example.com",
			allowedIssuers: []string{"https://issuer1.example.com", "https://issuer2.example.com"},
			wantIssuers: map[string]bool{
				"https://issuer1.example.com": true,
				"https://issuer2.example.com": true,
			},
		},
		{
			name:        "empty allowed issuers defaults to issuer URL",
			issuerURL:   "https://auth.example.com",
			wantIssuers: map[string]bool{"https://auth.example.com": true},
		},
		{
			name:        "empty allowed issuers with empty issuer URL",
			issuerURL:   "",
			wantIssuers: map[string]bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, err := NewOIDCValidatorFromJWKS(
				context.Background(),
				"https://auth.example.com/.well-known/jwks.json",
				tt.issuerURL,
				"my-app",
				tt.allowedIssuers,
			)

			require.NoError(t, err)
			require.NotNil(t, v)
			assert.Equal(t, tt.wantIssuers, v.allowedIssuers)
			assert.NotNil(t, v.verifier)
		})
	}
}

// ptrStr is a helper to create a *string from a literal.
func ptrStr(s string) *string {
	return &s
}
