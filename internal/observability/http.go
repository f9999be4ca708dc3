package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ClientInfo identifies the device and network origin of a request.
type ClientInfo struct {
	DeviceID  string
	IP        string
	RequestID string
}

// ClientInfoFromRequest reads the device id, the first forwarded address and the request id,
// minting a request id when the caller sent none.
func ClientInfoFromRequest(r *http.Request) ClientInfo {
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return ClientInfo{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        ipFromRequest(r),
		RequestID: requestID,
	}
}

func ipFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
