package alert

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/vigilohq/agent/internal/config"
	"github.com/vigilohq/agent/pkg/types"
)

func TestSMTPMessageFormat(t *testing.T) {
	sink := NewSMTPSink(config.MailConfig{
		FromEmail:     "agent@example.net",
		ToEmails:      []string{"ops@example.net", "oncall@example.net"},
		SubjectPrefix: "[sms-gw-01]",
	})

	msg := sink.message(types.Alert{
		Subject: "CPU ALERT | High CPU on sms-gw-01",
		Body:    "<html><body>cpu at 97%</body></html>",
	})

	for _, want := range []string{
		"From: agent@example.net\r\n",
		"To: ops@example.net, oncall@example.net\r\n",
		"Subject: [sms-gw-01] CPU ALERT | High CPU on sms-gw-01\r\n",
		"Content-Type: text/html; charset=UTF-8\r\n",
		"\r\n<html><body>cpu at 97%</body></html>\r\n",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestSMTPMessageWithoutPrefix(t *testing.T) {
	sink := NewSMTPSink(config.MailConfig{FromEmail: "agent@example.net"})

	msg := sink.message(types.Alert{Subject: "RESOLVED | CPU Normal on sms-gw-01"})
	if !strings.Contains(msg, "Subject: RESOLVED | CPU Normal on sms-gw-01\r\n") {
		t.Fatalf("unexpected subject line:\n%s", msg)
	}
}

func TestSMTPSendDialFailure(t *testing.T) {
	sink := NewSMTPSink(config.MailConfig{SMTPServer: "relay.invalid", SMTPPort: 25})
	sink.dial = func(addr string, timeout time.Duration) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	if err := sink.Send(context.Background(), types.Alert{}); err == nil {
		t.Fatal("expected a dial error")
	}
}

// fakeRelay answers just enough SMTP for one plain unauthenticated delivery.
func fakeRelay(t *testing.T, ln net.Listener, got chan<- string) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	reply("220 relay ready")
	var data strings.Builder
	inData := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if inData {
			if line == "." {
				inData = false
				reply("250 queued")
				got <- data.String()
				continue
			}
			data.WriteString(line + "\r\n")
			continue
		}
		switch {
		case strings.HasPrefix(line, "EHLO"):
			reply("250-relay")
			reply("250 OK")
		case strings.HasPrefix(line, "HELO"):
			reply("250 relay")
		case strings.HasPrefix(line, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(line, "RCPT TO"):
			reply("250 OK")
		case line == "DATA":
			reply("354 go ahead")
			inData = true
		case line == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func TestSMTPSendDelivers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	got := make(chan string, 1)
	go fakeRelay(t, ln, got)

	sink := NewSMTPSink(config.MailConfig{
		SMTPServer: "127.0.0.1",
		FromEmail:  "agent@example.net",
		ToEmails:   []string{"ops@example.net"},
	})
	sink.dial = func(addr string, timeout time.Duration) (net.Conn, error) {
		return net.DialTimeout("tcp", ln.Addr().String(), timeout)
	}

	err = sink.Send(context.Background(), types.Alert{
		Subject: "PING ALERT | Ping Failed on sms-gw-01",
		Body:    "<html><body>no reply from 10.0.0.1</body></html>",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case msg := <-got:
		if !strings.Contains(msg, "Subject: PING ALERT | Ping Failed on sms-gw-01") {
			t.Fatalf("relay received unexpected message:\n%s", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relay never received the message body")
	}
}
