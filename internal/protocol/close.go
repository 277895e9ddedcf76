package protocol

import "github.com/gorilla/websocket"

// Close codes sent by the relay. Each policy outcome has its own code so a
// client can tell them apart.
const (
	CloseNormal         = websocket.CloseNormalClosure   // 1000
	CloseGoingAway      = websocket.CloseGoingAway       // 1001, server shutdown
	CloseMalformed      = websocket.CloseProtocolError   // 1002, unparsable frame
	CloseInvalidPayload = websocket.CloseUnsupportedData // 1003, failed validation
	CloseRateLimited    = websocket.ClosePolicyViolation // 1008, token bucket or burst
	CloseSlowConsumer   = websocket.CloseTryAgainLater   // 1013, delivery failed
)

// CloseReason returns the short reason sent alongside a close code.
func CloseReason(code int) string {
	switch code {
	case CloseNormal:
		return "normal closure"
	case CloseGoingAway:
		return "server shutting down"
	case CloseMalformed:
		return "invalid json"
	case CloseInvalidPayload:
		return "invalid payload"
	case CloseRateLimited:
		return "rate limit"
	case CloseSlowConsumer:
		return "send buffer full"
	default:
		return ""
	}
}
