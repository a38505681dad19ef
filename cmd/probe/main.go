// Command probe checks a running sessiond deployment end to end: it writes a
// flag through the debug API, waits out the configured save delay, and reads
// the flag back to verify the store round-trip. With -watch it also connects
// to the session-watch WebSocket and confirms the change event arrives.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8092", "sessiond base URL")
	token := flag.String("token", "", "debug bearer token")
	saveDelay := flag.Duration("save-delay", 500*time.Millisecond, "wait between write and verify")
	watch := flag.Bool("watch", false, "also verify the session-watch stream")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	flag.Parse()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar, Timeout: *timeout}

	p := &prober{
		baseURL: strings.TrimRight(*baseURL, "/"),
		token:   *token,
		client:  client,
	}

	fmt.Printf("probing %s\n", p.baseURL)

	if err := p.checkHealth(); err != nil {
		fail("health check", err)
	}
	ok("health check")

	sid, err := p.fetchState()
	if err != nil {
		fail("initial state fetch", err)
	}
	ok("initial state fetch (session " + sid + ")")

	var watchCh chan string
	if *watch {
		watchCh = make(chan string, 1)
		if err := p.startWatch(sid, watchCh); err != nil {
			fail("watch connect", err)
		}
		ok("watch connected")
	}

	// Write a flag, wait for the backend save, read it back. The delay
	// mirrors how the store behaves behind multiple workers: a write is
	// acknowledged before every reader is guaranteed to observe it.
	if err := p.setFlag("csv_loaded", true); err != nil {
		fail("flag write", err)
	}
	ok("flag write")

	time.Sleep(*saveDelay)

	state, err := p.state()
	if err != nil {
		fail("state verify", err)
	}
	if loaded, _ := state["csv_loaded"].(bool); !loaded {
		fail("state verify", fmt.Errorf("csv_loaded not set after %s", *saveDelay))
	}
	ok("state verify (read-your-write)")

	if *watch {
		select {
		case flagName := <-watchCh:
			ok("watch event received (" + flagName + ")")
		case <-time.After(5 * time.Second):
			fail("watch event", fmt.Errorf("no change event within 5s"))
		}
	}

	fmt.Println("all checks passed")
}

func ok(step string) { fmt.Printf("  OK   %s\n", step) }

func fail(step string, err error) {
	fmt.Printf("  FAIL %s: %v\n", step, err)
	os.Exit(1)
}

type prober struct {
	baseURL string
	token   string
	client  *http.Client
}

func (p *prober) do(req *http.Request) (*http.Response, error) {
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	return p.client.Do(req)
}

func (p *prober) checkHealth() error {
	req, _ := http.NewRequest(http.MethodGet, p.baseURL+"/healthz", nil)
	resp, err := p.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// state fetches /debug/session-state as a generic map.
func (p *prober) state() (map[string]any, error) {
	req, _ := http.NewRequest(http.MethodGet, p.baseURL+"/debug/session-state", nil)
	resp, err := p.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var state map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, err
	}
	return state, nil
}

// fetchState fetches the state once and returns the session id the server
// assigned (via cookie on the first call).
func (p *prober) fetchState() (string, error) {
	state, err := p.state()
	if err != nil {
		return "", err
	}
	sid, _ := state["session_id"].(string)
	if sid == "" {
		return "", fmt.Errorf("no session_id in state response")
	}
	return sid, nil
}

func (p *prober) setFlag(name string, value bool) error {
	body, _ := json.Marshal(map[string]any{"flag": name, "value": value})
	req, _ := http.NewRequest(http.MethodPost, p.baseURL+"/debug/session-state", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// startWatch dials the session-watch WebSocket for the given session and
// forwards the flag name of each change event to ch.
func (p *prober) startWatch(sid string, ch chan<- string) error {
	wsURL, err := url.Parse(p.baseURL)
	if err != nil {
		return err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/debug/session-watch"
	wsURL.RawQuery = "session_id=" + url.QueryEscape(sid)

	header := http.Header{}
	if p.token != "" {
		header.Set("Authorization", "Bearer "+p.token)
	}
	dialer := ws.Dialer{Header: ws.HandshakeHeaderHTTP(header)}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, _, err := dialer.Dial(ctx, wsURL.String())
	if err != nil {
		return err
	}

	go func() {
		defer conn.Close()
		for {
			data, err := wsutil.ReadServerText(conn)
			if err != nil {
				return
			}
			var event struct {
				Flag string `json:"flag"`
			}
			if err := json.Unmarshal(data, &event); err != nil {
				continue
			}
			select {
			case ch <- event.Flag:
			default:
			}
		}
	}()
	return nil
}
