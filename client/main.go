package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/partygame/models"
	"github.com/wfunc/partygame/network"
)

const usage = `commands:
  hello [name] [table] [seat]
  tap <delta>
  answer <quizId> <choice>
  join <roomId> | leave
  mode <idle|countup|quiz|lottery>
  start [countdownMs] | stop
  next | show <quizId> | reveal [points]
  draw <kind>
  {"type": ...}   raw envelope`

// send wraps an event into an envelope and writes it as a text frame.
func send(c *websocket.Conn, ev network.Inbound) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(network.Envelope{Type: ev.EventType(), Data: data})
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, raw)
}

// parseCommand turns one stdin line into an event. name is used when hello has no argument.
func parseCommand(line, name string) (network.Inbound, error) {
	if strings.HasPrefix(line, "{") {
		return network.DecodeBytes([]byte(line))
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	args := fields[1:]
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch fields[0] {
	case "hello":
		h := &network.Hello{DisplayName: name, TableNo: arg(1), SeatNo: arg(2)}
		if arg(0) != "" {
			h.DisplayName = arg(0)
		}
		return h, nil
	case "tap":
		delta, err := strconv.Atoi(arg(0))
		if err != nil {
			return nil, fmt.Errorf("tap needs a number: %w", err)
		}
		return &network.TapDelta{Delta: delta}, nil
	case "answer":
		choice, err := strconv.Atoi(arg(1))
		if err != nil || arg(0) == "" {
			return nil, fmt.Errorf("usage: answer <quizId> <choice>")
		}
		return &network.QuizAnswer{QuizID: arg(0), ChoiceIndex: &choice}, nil
	case "join":
		return &network.RoomJoin{RoomID: arg(0)}, nil
	case "leave":
		return &network.RoomLeave{}, nil
	case "mode":
		return &network.ModeSwitch{To: models.Mode(arg(0))}, nil
	case "start":
		g := &network.GameStart{}
		if arg(0) != "" {
			ms, err := strconv.ParseInt(arg(0), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("countdown must be milliseconds: %w", err)
			}
			g.CountdownMs = &ms
		}
		return g, nil
	case "stop":
		return &network.GameStop{}, nil
	case "next":
		return &network.QuizNext{}, nil
	case "show":
		return &network.QuizShowRequest{QuizID: arg(0)}, nil
	case "reveal":
		r := &network.QuizReveal{}
		if arg(0) != "" {
			points, err := strconv.Atoi(arg(0))
			if err != nil {
				return nil, fmt.Errorf("points must be a number: %w", err)
			}
			r.Points = &points
		}
		return r, nil
	case "draw":
		return &network.LotteryDraw{Kind: arg(0)}, nil
	}
	return nil, fmt.Errorf("unknown command %q", fields[0])
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	roomID := flag.String("room", "default", "room to join")
	name := flag.String("name", "Guest", "display name sent with hello")
	role := flag.String("role", "player", "player or admin")
	token := flag.String("token", "", "admin JWT from /api/auth/login")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	q := url.Values{"room": {*roomID}, "role": {*role}}
	if *token != "" {
		q.Set("token", *token)
	}
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: q.Encode()}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			var env network.Envelope
			if err := json.Unmarshal(message, &env); err != nil {
				log.Printf("<- RECV invalid frame: %s", string(message))
				continue
			}
			log.Printf("<- %s %s", env.Type, string(env.Data))
		}
	}()

	if *role == "player" {
		if err := send(c, &network.Hello{DisplayName: *name}); err != nil {
			log.Println("Write error:", err)
			return
		}
	}
	log.Println(usage)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			ev, err := parseCommand(line, *name)
			if err != nil {
				log.Println(err)
				continue
			}
			if err := send(c, ev); err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> SENT %s", ev.EventType())
		}
	}
}
