//go:build ignore

// Smoke script to exercise a running canvas server end to end.
// Start the server first (go run ./cmd/canvas serve --in-memory), then:
// go run scripts/canvas_smoke.go [-addr localhost:8085]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianCanvas/services/canvas"
	"github.com/AleutianAI/AleutianCanvas/services/canvas/shape"
)

func main() {
	addr := flag.String("addr", "localhost:8085", "canvas server host:port")
	flag.Parse()

	base := "http://" + *addr
	board := fmt.Sprintf("smoke-%d", time.Now().Unix())

	fmt.Println("╔══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║              CANVAS COLLABORATION SMOKE TEST                      ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════╝")

	// 1. Health check
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Println("│ Step 1: Health check                                            │")
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
	var health canvas.HealthResponse
	getJSON(base+"/v1/canvas/health", &health)
	fmt.Printf("  ✓ Server %s is %s\n", health.Version, health.Status)

	// 2. Open a board
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Println("│ Step 2: Opening a board                                         │")
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
	resp, err := http.Post(base+"/v1/canvas/boards", "application/json",
		strings.NewReader(fmt.Sprintf(`{"id": %q}`, board)))
	if err != nil || resp.StatusCode != http.StatusCreated {
		log.Fatalf("open board: err=%v status=%v", err, respStatus(resp))
	}
	resp.Body.Close()
	fmt.Printf("  ✓ Board %q opened\n", board)

	// 3. Connect two clients
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Println("│ Step 3: Connecting two websocket clients                        │")
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
	alice := dial(*addr, board, "smoke-alice")
	defer alice.Close()
	bob := dial(*addr, board, "smoke-bob")
	defer bob.Close()
	fmt.Println("  ✓ alice connected (hello received)")
	fmt.Println("  ✓ bob connected (hello received)")

	// 4. Draw and drag
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Println("│ Step 4: alice draws, bob watches                                │")
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
	rect := shape.Shape{Kind: shape.KindRectangle, X: 10, Y: 10, Width: 200, Height: 120, Color: "#2266aa"}
	send(alice, canvas.ClientFrame{Op: canvas.OpCreate, Seq: 1, Shape: &rect})
	ack := await(alice, "create ack", func(f canvas.ServerFrame) bool {
		return f.Type == canvas.FrameAck && f.Seq == 1
	})
	rectID := ack.ShapeID
	fmt.Printf("  ✓ alice created rectangle %s\n", rectID)

	await(bob, "rect on bob's board", func(f canvas.ServerFrame) bool {
		return f.Type == canvas.FrameEvents && len(f.Events) > 0 && f.Events[0].Shape.ID == rectID
	})
	fmt.Println("  ✓ bob saw the rectangle arrive")

	start := time.Now()
	for _, x := range []float64{40, 80, 120, 160, 200} {
		xv := x
		send(alice, canvas.ClientFrame{Op: canvas.OpUpdateLive, ShapeID: rectID, Patch: &shape.Patch{X: &xv}, Action: "drag"})
	}
	await(bob, "drag to x=200", func(f canvas.ServerFrame) bool {
		if f.Type != canvas.FrameEvents {
			return false
		}
		for _, ev := range f.Events {
			if ev.Shape.ID == rectID && ev.Shape.X == 200 {
				return true
			}
		}
		return false
	})
	fmt.Printf("  ✓ bob converged on the drag in %v\n", time.Since(start).Round(time.Millisecond))

	// 5. Lock verdicts
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Println("│ Step 5: advisory lock verdicts                                  │")
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
	send(alice, canvas.ClientFrame{Op: canvas.OpLock, Seq: 2, ShapeID: rectID})
	verdict := await(alice, "lock verdict", func(f canvas.ServerFrame) bool {
		return f.Type == canvas.FrameAck && f.Seq == 2
	})
	fmt.Printf("  ✓ alice lock granted: %v\n", verdict.Granted != nil && *verdict.Granted)
	send(alice, canvas.ClientFrame{Op: canvas.OpUnlock, Seq: 3, ShapeID: rectID})
	await(alice, "unlock ack", func(f canvas.ServerFrame) bool {
		return f.Type == canvas.FrameAck && f.Seq == 3
	})
	fmt.Println("  ✓ alice released the lock")

	// 6. Undo, then verify over REST
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Println("│ Step 6: undo and REST verification                              │")
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
	time.Sleep(500 * time.Millisecond) // let the drag burst coalesce
	send(alice, canvas.ClientFrame{Op: canvas.OpUndo, Seq: 4})
	await(alice, "undo ack", func(f canvas.ServerFrame) bool {
		return f.Type == canvas.FrameAck && f.Seq == 4
	})

	var snap canvas.BoardSnapshotResponse
	getJSON(base+"/v1/canvas/boards/"+board, &snap)
	if len(snap.Shapes) != 1 {
		log.Fatalf("expected 1 shape after undo, got %d", len(snap.Shapes))
	}
	fmt.Printf("  ✓ undo rolled the drag back, rectangle at x=%.0f\n", snap.Shapes[0].X)

	fmt.Println("\n╔══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        SMOKE TEST PASSED                          ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════╝")
}

func dial(addr, board, actor string) *websocket.Conn {
	url := fmt.Sprintf("ws://%s/v1/canvas/boards/%s/ws?actor=%s", addr, board, actor)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	await(conn, "hello", func(f canvas.ServerFrame) bool { return f.Type == canvas.FrameHello })
	return conn
}

func send(conn *websocket.Conn, f canvas.ClientFrame) {
	if err := conn.WriteJSON(f); err != nil {
		log.Fatalf("send %s: %v", f.Op, err)
	}
}

func await(conn *websocket.Conn, desc string, pred func(canvas.ServerFrame) bool) canvas.ServerFrame {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f canvas.ServerFrame
		if err := conn.ReadJSON(&f); err != nil {
			log.Fatalf("waiting for %s: %v", desc, err)
		}
		if pred(f) {
			return f
		}
	}
}

func getJSON(url string, out interface{}) {
	resp, err := http.Get(url)
	if err != nil {
		log.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatalf("decode %s: %v", url, err)
	}
}

func respStatus(r *http.Response) interface{} {
	if r == nil {
		return "no response"
	}
	return r.StatusCode
}
