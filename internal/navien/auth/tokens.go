package auth

import "time"

// tokenExpirySkew is subtracted from the token lifetime so a token is
// treated as expired slightly before the server would reject it.
const tokenExpirySkew = 60 * time.Second

// Tokens holds the credential set issued by the Navien cloud.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired reports whether the access token is expired or will expire
// within the skew window. A nil token set is expired.
func (t *Tokens) IsExpired() bool {
	if t == nil {
		return true
	}
	return !time.Now().Add(tokenExpirySkew).Before(t.ExpiresAt)
}

// IsValid reports whether the token set is usable: an access token is
// present and not expired. A nil token set is not valid.
func (t *Tokens) IsValid() bool {
	return t != nil && t.AccessToken != "" && !t.IsExpired()
}
