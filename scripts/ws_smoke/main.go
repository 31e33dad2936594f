package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirenote/internal/proto"
)

type authResponse struct {
	Token string `json:"token"`
	User  *struct {
		ID int64 `json:"id"`
	} `json:"user"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run registers two throwaway users, listens on the receiver's websocket and
// sends it a message over the REST API, then waits for the notification.
func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	suffix := time.Now().UnixNano() % 1_000_000
	sender, err := register(ctx, *base, fmt.Sprintf("smoke_tx_%d", suffix))
	if err != nil {
		return err
	}
	receiver, err := register(ctx, *base, fmt.Sprintf("smoke_rx_%d", suffix))
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	helloPayload, err := json.Marshal(proto.HelloData{Token: receiver.Token, Protocol: proto.ProtocolVersion})
	if err != nil {
		return fmt.Errorf("marshal hello: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeHello, Data: helloPayload}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	sent := false
	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		fmt.Printf("Received outbound: type=%s", outbound.Type)
		if outbound.Event != "" {
			fmt.Printf(" event=%s", outbound.Event)
		}
		fmt.Println()

		if outbound.Error != nil {
			return fmt.Errorf("server error %s: %s", outbound.Error.Code, outbound.Error.Msg)
		}

		switch outbound.Event {
		case proto.EventReady:
			if sent {
				continue
			}
			body := map[string]any{"receiver_id": receiver.User.ID, "content": *text}
			if err := postJSON(ctx, *base+"/api/messages", sender.Token, body, nil); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
			sent = true
		case proto.EventNotification:
			var evt proto.EventNotificationData
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				fmt.Printf("Raw data: %s\n", string(outbound.Data))
				return fmt.Errorf("unmarshal notification: %w", err)
			}
			fmt.Printf("Notification: type=%s from=%s content=%q ts=%d\n", evt.Type, evt.From, evt.Content, evt.TS)
			return nil
		}
	}
}

func register(ctx context.Context, base, username string) (*authResponse, error) {
	var out authResponse
	body := map[string]string{"username": username, "password": "smoke-pass"}
	if err := postJSON(ctx, base+"/api/register", "", body, &out); err != nil {
		return nil, fmt.Errorf("register %s: %w", username, err)
	}
	if out.User == nil {
		return nil, fmt.Errorf("register %s: response without user", username)
	}
	return &out, nil
}

func postJSON(ctx context.Context, url, token string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
