package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Tyrowin/chathub/internal/hub"
)

const healthPingTimeout = 2 * time.Second

// LiveHandler upgrades the request to a websocket and runs a hub session for
// the user named in the path until the connection ends.
func (s *Server) LiveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Live endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	if err := s.hub.Serve(userID, conn, r.RemoteAddr); errors.Is(err, hub.ErrHubClosed) {
		s.log.Info().Int64("user_id", userID).Msg("rejected live connection during shutdown")
	}
}

// HealthHandler reports that the server is running and its store is reachable.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		s.log.Error().Err(err).Msg("health check: store unreachable")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprint(w, "chathub is degraded: database unreachable")
		return
	}

	_, _ = fmt.Fprintf(w, "chathub is running! live sessions: %d", s.hub.Registry().Len())
}

// TestPageHandler serves a small HTML page to exercise the live endpoint
// from a browser.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.Error().Err(err).Msg("writing test page")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>chathub live test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; }
        input[type="text"], input[type="number"] { padding: 5px; margin-right: 10px; }
    </style>
</head>
<body>
    <h1>chathub live test</h1>
    <div>
        user <input type="number" id="userId" value="1">
        channel <input type="number" id="channelId" value="1">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>
    <div id="messages"></div>
    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');

        function addLine(text) {
            const el = document.createElement('div');
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function setConnected(connected) {
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            const userId = document.getElementById('userId').value;
            ws = new WebSocket('ws://' + location.host + '/' + userId + '/live');
            ws.onopen = () => { addLine('connected as user ' + userId); setConnected(true); };
            ws.onmessage = (event) => {
                const frame = JSON.parse(event.data);
                addLine((frame.sender.display_name || frame.sender.id) + ': ' + frame.text_content);
            };
            ws.onclose = () => { addLine('connection closed'); setConnected(false); ws = null; };
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (!text || !ws) {
                return;
            }
            ws.send(JSON.stringify({
                channel_id: Number(document.getElementById('channelId').value),
                msgs: [{ content_type: 'text', text_content: text }]
            }));
            messageInput.value = '';
        }

        messageInput.addEventListener('keypress', (e) => { if (e.key === 'Enter') { sendMessage(); } });
    </script>
</body>
</html>`
