package derailed

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
)

// TestSessionAckFrame is the session acknowledgment TestGatewayHandler sends
// in response to an identify frame.
const TestSessionAckFrame = `{"op":3,"d":{"session_id":"test-session"}}`

// TestReadyFrame is the ready event TestGatewayHandler sends after the
// session acknowledgment.
//
// nolint:lll
const TestReadyFrame = `{"op":0,"t":"READY","user":{"id":"1","username":"a","discriminator":"0001","verification":{"email":true,"phone":false}},"settings":{"status":"online","theme":"dark","client_status":"web"}}`

// TestGatewayHandler provides a sample gateway handling function. It upgrades
// the connection and answers the first identify frame with a session
// acknowledgment followed by a ready event; all other inbound frames are
// read and discarded.
//
// If an error occurs while upgrading the websocket, it will panic.
func TestGatewayHandler(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		panic(err)
	}

	go func() {
		for {
			_, data, rerr := c.ReadMessage()
			if rerr != nil {
				return
			}

			var f struct {
				Op int `json:"op"`
			}
			if json.Unmarshal(data, &f) != nil {
				continue
			}

			if f.Op == opIdentify {
				if werr := c.WriteMessage(websocket.TextMessage, []byte(TestSessionAckFrame)); werr != nil {
					return
				}
				if werr := c.WriteMessage(websocket.TextMessage, []byte(TestReadyFrame)); werr != nil {
					return
				}
			}
		}
	}()
}

// TestErrorGatewayHandler provides a gateway handling function that pushes a
// fatal op-2 error as soon as the connection is established.
//
// If an error occurs while upgrading the websocket, it will panic.
func TestErrorGatewayHandler(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		panic(err)
	}

	_ = c.WriteMessage(websocket.TextMessage, []byte(`{"op":2,"d":"bad token"}`))

	go func() {
		for {
			if _, _, rerr := c.ReadMessage(); rerr != nil {
				return
			}
		}
	}()
}
