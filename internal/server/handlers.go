// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, room statistics, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/fireworks/internal/protocol"
	"github.com/Tyrowin/fireworks/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

const infoText = "Fireworks relay. Connect with a WebSocket to /?room=<name>."

// RootHandler upgrades WebSocket requests and joins them to the room named
// by the room query parameter. Preflight requests get CORS headers and any
// other request gets a short informational response.
func RootHandler(rt *room.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			WebSocketHandler(rt)(w, r)
			return
		}

		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, infoText)
	}
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")
}

// WebSocketHandler upgrades the request, creates a Client, joins it to its
// room and starts the client's pumps.
func WebSocketHandler(rt *room.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger().Debug("websocket upgrade failed", zap.Error(err), zap.String("addr", r.RemoteAddr))
			return
		}

		roomID := room.NormalizeID(r.URL.Query().Get("room"))
		client := NewClient(conn, r.RemoteAddr)

		joined, err := rt.Join(roomID, client)
		if err != nil {
			logger().Info("rejecting connection", zap.String("room", roomID), zap.Error(err))
			rejectConn(conn)
			return
		}

		if !client.run(joined, pumpsFor(rt)) {
			logger().Info("rejecting connection during shutdown", zap.String("room", roomID))
			joined.Leave(client)
			rejectConn(conn)
		}
	}
}

// rejectConn closes an upgraded connection with going away.
func rejectConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(protocol.CloseGoingAway, protocol.CloseReason(protocol.CloseGoingAway))
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}

// HealthHandler reports that the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Fireworks relay is running!")
}

// StatsHandler reports the router's room and client counts as JSON.
func StatsHandler(rt *room.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rt.Stats()); err != nil {
			logger().Warn("writing stats response", zap.Error(err))
		}
	}
}

// TestPageHandler serves an HTML page that joins a room and launches
// fireworks on click.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		logger().Warn("writing test page", zap.Error(err))
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Fireworks Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #sky { border: 1px solid #ccc; background: #0b1020; cursor: crosshair; }
        #log {
            border: 1px solid #ccc;
            height: 200px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Fireworks Relay Test</h1>

    <div>
        <input type="text" id="room" value="public">
        <input type="text" id="name" placeholder="name" maxlength="20">
        <input type="color" id="color" value="#ff4081">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
        <button onclick="ping()">Ping</button>
    </div>

    <div id="status" class="status disconnected">Disconnected</div>
    <canvas id="sky" width="800" height="400"></canvas>
    <div id="log"></div>

    <script>
        let ws = null;
        const sky = document.getElementById('sky');
        const ctx = sky.getContext('2d');
        const logDiv = document.getElementById('log');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function log(text) {
            const line = document.createElement('div');
            line.textContent = text;
            logDiv.appendChild(line);
            logDiv.scrollTop = logDiv.scrollHeight;
        }

        function burst(x, y, color) {
            ctx.fillStyle = color || '#ffffff';
            for (let i = 0; i < 24; i++) {
                const a = (Math.PI * 2 * i) / 24;
                ctx.beginPath();
                ctx.arc(x + Math.cos(a) * 30, y + Math.sin(a) * 30, 3, 0, Math.PI * 2);
                ctx.fill();
            }
            setTimeout(function() { ctx.clearRect(x - 40, y - 40, 80, 80); }, 800);
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const room = encodeURIComponent(document.getElementById('room').value);
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/?room=' + room);

            ws.onopen = function() { updateStatus(true); };
            ws.onmessage = function(event) {
                log('< ' + event.data);
                const msg = JSON.parse(event.data);
                if (msg.type === 'launch' || msg.t === 'launch') {
                    burst(msg.x / 5000 * sky.width, msg.y / 5000 * sky.height, msg.color);
                }
            };
            ws.onclose = function(event) {
                log('closed ' + event.code + ' ' + event.reason);
                updateStatus(false);
                ws = null;
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function ping() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({type: 'ping'}));
            }
        }

        sky.addEventListener('click', function(e) {
            if (!ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            const rect = sky.getBoundingClientRect();
            const px = e.clientX - rect.left;
            const py = e.clientY - rect.top;
            const launch = {
                type: 'launch',
                x: Math.round(px / sky.width * 5000),
                y: Math.round(py / sky.height * 5000),
                color: document.getElementById('color').value
            };
            const name = document.getElementById('name').value;
            if (name) {
                launch.name = name;
            }
            ws.send(JSON.stringify(launch));
            burst(px, py, launch.color);
        });
    </script>
</body>
</html>`
