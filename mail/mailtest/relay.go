// Package mailtest runs an in-process SMTP relay for tests. It speaks just
// enough ESMTP for go-mail: EHLO, AUTH PLAIN, MAIL, RCPT, DATA, RSET, QUIT.
package mailtest

import (
	"encoding/base64"
	"net"
	netmail "net/mail"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"
)

// Received is one message accepted by the relay.
type Received struct {
	From     string
	To       []string
	Data     string
	Username string
}

// Header returns the named header of the accepted message, or "" when the
// data cannot be parsed.
func (m Received) Header(name string) string {
	msg, err := netmail.ReadMessage(strings.NewReader(m.Data))
	if err != nil {
		return ""
	}
	return msg.Header.Get(name)
}

// Relay is a fake SMTP relay bound to 127.0.0.1.
type Relay struct {
	Host string
	Port int

	rejectAuth bool
	delay      time.Duration
	ln         net.Listener
	done       chan struct{}

	mu       sync.Mutex
	closed   bool
	messages []Received
	conns    []net.Conn
	dials    int
	wg       sync.WaitGroup
}

// Option configures a Relay.
type Option func(*Relay)

// RejectAuth makes every AUTH attempt fail with 535.
func RejectAuth() Option { return func(r *Relay) { r.rejectAuth = true } }

// Delay holds back every reply, the greeting included, by d.
func Delay(d time.Duration) Option { return func(r *Relay) { r.delay = d } }

// Start launches a relay and stops it when the test ends.
func Start(t testing.TB, opts ...Option) *Relay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mailtest: listen: %v", err)
	}
	r := &Relay{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port, ln: ln, done: make(chan struct{})}
	for _, o := range opts {
		o(r)
	}

	r.wg.Add(1)
	go r.accept()
	t.Cleanup(r.Close)
	return r
}

// Close stops accepting and drops open connections.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.done)
	_ = r.ln.Close()
	for _, c := range r.conns {
		_ = c.Close()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Messages returns a copy of everything accepted so far.
func (r *Relay) Messages() []Received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Received(nil), r.messages...)
}

// Dials returns how many connections the relay has accepted.
func (r *Relay) Dials() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dials
}

func (r *Relay) accept() {
	defer r.wg.Done()
	for {
		c, err := r.ln.Accept()
		if err != nil {
			return
		}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			_ = c.Close()
			return
		}
		r.dials++
		r.conns = append(r.conns, c)
		r.wg.Add(1)
		r.mu.Unlock()

		go func() {
			defer r.wg.Done()
			defer c.Close()
			r.serve(textproto.NewConn(c))
		}()
	}
}

func (r *Relay) serve(tc *textproto.Conn) {
	reply := func(format string, args ...any) bool {
		if r.delay > 0 {
			select {
			case <-time.After(r.delay):
			case <-r.done:
				return false
			}
		}
		return tc.PrintfLine(format, args...) == nil
	}
	if !reply("220 mailtest ESMTP ready") {
		return
	}

	var cur Received
	var user string
	for {
		line, err := tc.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EHLO":
			if !reply("250-mailtest") || !reply("250-AUTH PLAIN LOGIN") || !reply("250 8BITMIME") {
				return
			}
		case "HELO":
			reply("250 mailtest")
		case "AUTH":
			if r.rejectAuth {
				reply("535 5.7.8 Authentication credentials invalid")
				continue
			}
			user = plainUser(arg)
			reply("235 2.7.0 Authentication successful")
		case "MAIL":
			cur = Received{From: addrArg(arg), Username: user}
			reply("250 2.1.0 OK")
		case "RCPT":
			cur.To = append(cur.To, addrArg(arg))
			reply("250 2.1.5 OK")
		case "DATA":
			if !reply("354 End data with <CR><LF>.<CR><LF>") {
				return
			}
			lines, err := tc.ReadDotLines()
			if err != nil {
				return
			}
			cur.Data = strings.Join(lines, "\n")
			r.mu.Lock()
			r.messages = append(r.messages, cur)
			r.mu.Unlock()
			cur = Received{}
			reply("250 2.0.0 queued")
		case "QUIT":
			reply("221 2.0.0 bye")
			return
		default:
			// NOOP, RSET and anything else
			reply("250 2.0.0 OK")
		}
	}
}

// plainUser extracts the authentication identity from an AUTH PLAIN
// initial response.
func plainUser(arg string) string {
	_, resp, ok := strings.Cut(arg, " ")
	if !ok {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(resp)
	if err != nil {
		return ""
	}
	parts := strings.Split(string(raw), "\x00")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

// addrArg turns "FROM:<a@b> SIZE=1" into "a@b".
func addrArg(arg string) string {
	_, v, _ := strings.Cut(arg, ":")
	v, _, _ = strings.Cut(strings.TrimSpace(v), " ")
	return strings.Trim(v, "<>")
}
