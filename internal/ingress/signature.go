package ingress

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// reconstructURL rebuilds the externally-visible URL of r, honoring
// X-Forwarded-Proto and X-Forwarded-Host so that signature verification
// matches what the telephony provider actually signed, even behind a
// reverse proxy.
func reconstructURL(r *http.Request) string {
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}

	u := url.URL{Scheme: scheme, Host: host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	return u.String()
}

// signaturePayload builds the string signed by the telephony provider: the
// URL, followed by every form field's key+value concatenated in
// lexicographic key order with no separators, per spec.md §6.
func signaturePayload(fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	return b.String()
}

// Sign computes the base64-encoded HMAC-SHA1 signature of fullURL and form
// under authToken, the tenant's telephony provider auth token.
func Sign(authToken, fullURL string, form url.Values) string {
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(signaturePayload(fullURL, form)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the correct HMAC-SHA1 signature of
// fullURL and form under authToken. Comparison is constant-time.
func Verify(authToken, fullURL string, form url.Values, signature string) bool {
	want := Sign(authToken, fullURL, form)
	return hmac.Equal([]byte(want), []byte(signature))
}

// verifyRequest reports whether r (with already-parsed form) carries a
// valid signature under authToken in the given header value.
func verifyRequest(authToken string, r *http.Request, form url.Values, signature string) bool {
	return Verify(authToken, reconstructURL(r), form, signature)
}
