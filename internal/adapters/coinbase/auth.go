package coinbase

// auth.go — autenticación CDP de la API Advanced Trade.
//
// Cada request privado lleva un JWT ES256 de vida corta firmado con la clave
// EC de la API key: sub=nombre de la key, iss="cdp", uri="METHOD host/path",
// y en la cabecera kid=nombre de la key más un nonce aleatorio.

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	jwtIssuer   = "cdp"
	jwtLifetime = 2 * time.Minute
)

// Credentials es una API key de CDP: el nombre completo de la key
// ("organizations/{org}/apiKeys/{id}") y su clave privada EC en PEM.
type Credentials struct {
	KeyName    string
	PrivateKey string
}

// Empty reports whether no API key was configured.
func (c Credentials) Empty() bool {
	return c.KeyName == "" && c.PrivateKey == ""
}

type signer struct {
	keyName string
	key     *ecdsa.PrivateKey
	now     func() time.Time
}

func newSigner(c Credentials) (*signer, error) {
	if c.KeyName == "" || c.PrivateKey == "" {
		return nil, fmt.Errorf("auth: key name and private key are both required")
	}
	// los .env suelen guardar el PEM en una línea con \n literales
	pem := strings.ReplaceAll(c.PrivateKey, `\n`, "\n")
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid private key: %w", err)
	}
	return &signer{keyName: c.KeyName, key: key, now: time.Now}, nil
}

// token firma un JWT válido solo para method + host + path.
func (s *signer) token(method, host, path string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": s.keyName,
		"iss": jwtIssuer,
		"nbf": now.Unix(),
		"exp": now.Add(jwtLifetime).Unix(),
		"uri": method + " " + host + path,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = s.keyName
	tok.Header["nonce"] = strings.ReplaceAll(uuid.NewString(), "-", "")

	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign jwt: %w", err)
	}
	return signed, nil
}
