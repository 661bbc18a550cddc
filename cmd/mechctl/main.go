// mechctl: operator console for a running mechros
//
//	mechctl goal 2 1.5        send a navigation goal (z defaults to 0)
//	mechctl cmd estop         send a remote command
//	mechctl ping              measure the round trip
//	mechctl tail [topic]      stream system_state, telemetry, commands or all
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-mechros/pkg/protocol"
)

func main() {
	server := flag.String("server", envOr("MECHROS_SERVER", "ws://localhost:8080"), "mechros base URL")
	timeout := flag.Duration("timeout", 5*time.Second, "Reply timeout")
	pretty := flag.Bool("pretty", false, "Indent streamed JSON")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	if args[0] == "tail" {
		topic := "all"
		if len(args) > 1 {
			topic = args[1]
		}
		err = tail(ctx, *server, topic, *pretty)
	} else {
		var req *protocol.Message
		if req, err = buildRequest(args); err == nil {
			err = request(ctx, *server, req, *timeout)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mechctl [flags] goal <x> <y> [z] | cmd <command> | ping | tail [topic]")
	flag.PrintDefaults()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func dial(ctx context.Context, base, path string) (*websocket.Conn, error) {
	u, err := url.JoinPath(base, path)
	if err != nil {
		return nil, fmt.Errorf("bad server URL: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u, err)
	}
	return conn, nil
}

// request sends req on the operator channel and waits for its reply.
// Forwarded state and telemetry are skipped.
func request(ctx context.Context, server string, req *protocol.Message, timeout time.Duration) error {
	conn, err := dial(ctx, server, "/ws/operator")
	if err != nil {
		return err
	}
	defer conn.Close()

	sent := time.Now()
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("no reply: %w", err)
		}
		reply, err := protocol.ParseMessage(raw)
		if err != nil {
			continue
		}

		done, err := report(reply, time.Since(sent))
		if done {
			return err
		}
	}
}

// report prints a reply. It returns false for messages that are not a
// reply to the request.
func report(msg *protocol.Message, rtt time.Duration) (bool, error) {
	switch msg.Type {
	case protocol.TypeAck:
		var ack protocol.AckData
		_ = msg.ParseData(&ack)
		fmt.Printf("✅ %s accepted\n", ack.For)
		return true, nil

	case protocol.TypeError:
		var e protocol.ErrorData
		_ = msg.ParseData(&e)
		return true, fmt.Errorf("%s rejected: %s", e.For, e.Message)

	case protocol.TypePong:
		fmt.Printf("🏓 pong in %s\n", rtt.Round(time.Microsecond))
		return true, nil
	}
	return false, nil
}

func tail(ctx context.Context, server, topic string, pretty bool) error {
	conn, err := dial(ctx, server, "/ws/stream/"+url.PathEscape(topic))
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	fmt.Fprintf(os.Stderr, "📡 streaming %s (Ctrl-C to stop)\n", topic)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if pretty {
			var v any
			if json.Unmarshal(raw, &v) == nil {
				raw, _ = json.MarshalIndent(v, "", "  ")
			}
		}
		fmt.Println(string(raw))
	}
}
