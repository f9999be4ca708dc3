package ws

import "time"

// ConnInfo describes one socket for logs and ws_events.
type ConnInfo struct {
	ConnID      string
	AuthUserID  int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) identity(userID int) map[string]interface{} {
	return map[string]interface{}{
		"user_id":   userID,
		"device_id": i.DeviceID,
		"ip":        i.IP,
	}
}
