package payment

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/moncash-relay/internal/transport"
)

// SecretHeaders are checked in order; the first non-empty one is used.
var SecretHeaders = []string{"X-Moncash-Signature", "X-Hook-Secret", "X-Secret", "Authorization"}

// SecretVerifier checks the shared secret a webhook sender presents. An empty
// configured secret disables the check.
type SecretVerifier struct {
	secret string
	hashed bool
}

func NewSecretVerifier(secret string) *SecretVerifier {
	secret = strings.TrimSpace(secret)
	return &SecretVerifier{
		secret: secret,
		hashed: strings.HasPrefix(secret, "$2"),
	}
}

func (v *SecretVerifier) Enabled() bool {
	return v != nil && v.secret != ""
}

// Verify reports whether r carries the configured secret.
func (v *SecretVerifier) Verify(r *http.Request) bool {
	if !v.Enabled() {
		return true
	}

	presented := PresentedSecret(r)
	if presented == "" {
		return false
	}

	if v.hashed {
		return bcrypt.CompareHashAndPassword([]byte(v.secret), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(v.secret), []byte(presented)) == 1
}

// PresentedSecret extracts the secret from the first populated header.
func PresentedSecret(r *http.Request) string {
	for _, name := range SecretHeaders {
		value := strings.TrimSpace(r.Header.Get(name))
		if value == "" {
			continue
		}
		if name == "Authorization" {
			value = transport.StripBearer(value)
		}
		return value
	}
	return ""
}
