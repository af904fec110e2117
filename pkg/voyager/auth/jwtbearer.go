package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yourusername/voyager/pkg/voyager/transport"
)

// JWTBearer signs requests with "Authorization: Bearer <token>", the
// client-side mirror of bolt/middleware/jwt/jwt.go's server-side
// validation: same github.com/golang-jwt/jwt/v5 library and MapClaims
// shape, used here to sign outgoing requests instead of verifying
// incoming ones. The signed token is cached across requests and only
// re-minted once it's within RefreshSkew of its "exp" claim, rather than
// signing fresh on every call.
type JWTBearer struct {
	// SigningMethod picks the algorithm (jwt.SigningMethodHS256 and
	// friends); nil defaults to HS256.
	SigningMethod jwt.SigningMethod
	// Key is the signing key appropriate to SigningMethod (a []byte for
	// HMAC methods, an *rsa.PrivateKey for RS*, etc).
	Key any
	// Claims builds the claim set for each minted token. Must set "exp"
	// for the cache/skew logic to have anything to compare against; a
	// token minted without it is cached and reused for every later request.
	Claims func() jwt.MapClaims
	// RefreshSkew is how far ahead of "exp" a cached token is treated as
	// expired and re-signed. Defaults to 30s.
	RefreshSkew time.Duration

	mu     sync.Mutex
	cached string
	expiry time.Time
}

func (j *JWTBearer) RequiresRequestBody() bool  { return false }
func (j *JWTBearer) RequiresResponseBody() bool { return false }

func (j *JWTBearer) Start(req *transport.Request) (*transport.Request, error) {
	return j.inject(req)
}

func (j *JWTBearer) Resume(resp *transport.Response) (*transport.Request, error) {
	return nil, Done
}

func (j *JWTBearer) inject(req *transport.Request) (*transport.Request, error) {
	token, err := j.token()
	if err != nil {
		return nil, err
	}
	h := req.Header().Clone()
	h.Set("Authorization", "Bearer "+token)
	return req.WithHeader(h), nil
}

func (j *JWTBearer) token() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	skew := j.RefreshSkew
	if skew == 0 {
		skew = 30 * time.Second
	}
	if j.cached != "" && (j.expiry.IsZero() || time.Now().Before(j.expiry.Add(-skew))) {
		return j.cached, nil
	}

	method := j.SigningMethod
	if method == nil {
		method = jwt.SigningMethodHS256
	}
	claims := jwt.MapClaims{"iat": time.Now().Unix()}
	if j.Claims != nil {
		claims = j.Claims()
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(j.Key)
	if err != nil {
		return "", err
	}

	j.cached = signed
	j.expiry = expiryOf(claims)
	return signed, nil
}

// expiryOf extracts the "exp" claim as a time.Time, zero if absent or of
// an unexpected type (numeric claims arrive as float64 or jwt.NumericDate
// depending on how the caller built the map).
func expiryOf(claims jwt.MapClaims) time.Time {
	switch v := claims["exp"].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	case jwt.NumericDate:
		return v.Time
	default:
		return time.Time{}
	}
}
