package middleware

import (
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const identityKey = "client_identity"

// ipHeaders are consulted in order before the connection address.
// X-Forwarded-For contributes only its last entry.
var ipHeaders = []string{"CF-Connecting-IP", "Client-IP", "X-Forwarded-For"}

// AnonymousIdentity returns a fresh key for clients without a usable IP.
// All such clients share it for the life of the process.
func AnonymousIdentity() string {
	return "anon-" + uuid.NewString()
}

func parseIP(raw string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil || addr.Zone() != "" {
		return netip.Addr{}, false
	}
	return addr, true
}

// ClientIP picks the first valid IPv4 or IPv6 literal from the identity headers and the remote address.
func ClientIP(r *http.Request) (netip.Addr, bool) {
	for _, h := range ipHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		if h == "X-Forwarded-For" {
			// Repeated header lines form one list; the last hop is the one closest to us.
			hops := strings.Split(strings.Join(r.Header.Values(h), ","), ",")
			v = hops[len(hops)-1]
		}
		if addr, ok := parseIP(v); ok {
			return addr, true
		}
	}

	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr(), true
	}
	return parseIP(r.RemoteAddr)
}

func IdentityKey(addr netip.Addr) string {
	return strconv.FormatUint(xxhash.Sum64String(addr.String()), 16)
}

// ClientIdentity stores the throttle key of the caller in the gin context.
func ClientIdentity(anonymous string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := anonymous
		if addr, ok := ClientIP(c.Request); ok {
			id = IdentityKey(addr)
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// Identity returns the key set by ClientIdentity, or an empty string when the middleware did not run.
func Identity(c *gin.Context) string {
	return c.GetString(identityKey)
}
