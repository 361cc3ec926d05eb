// Package router resolves an opened data-channel label to a
// forwarding target and bridges the channel's raw byte stream to a
// dialed TCP connection.
package router

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Tables holds the HTTP and TCP forwarding targets configured for a
// peer connection, keyed by routing key.
type Tables struct {
	HTTP map[string]string
	TCP  map[string]string
}

// NewTables builds a Tables, tolerating nil maps.
func NewTables(http, tcp map[string]string) Tables {
	if http == nil {
		http = map[string]string{}
	}
	if tcp == nil {
		tcp = map[string]string{}
	}
	return Tables{HTTP: http, TCP: tcp}
}

// Resolve maps a data-channel label to a forwarding target: the label
// is split on its first "/"; the prefix before it
// selects an HTTP or TCP table entry, defaulting to the HTTP table's
// "@" entry when the label carries no routing prefix at all.
func (t Tables) Resolve(label string) (target string, ok bool) {
	prefix, _, hasSlash := strings.Cut(label, "/")
	if !hasSlash {
		target, ok = t.HTTP["@"]
		return
	}

	if prefix == "" {
		target, ok = t.HTTP["@"]
		return
	}

	c, r := prefix[0], prefix[1:]
	switch {
	case c == '@' && r != "":
		target, ok = t.HTTP[r]
	case c == ':' && r != "":
		target, ok = t.TCP[r]
	default:
		target, ok = t.HTTP[prefix]
	}
	return
}

// ResolveAddr parses target as a URL and returns the host:port to
// dial, defaulting the port by scheme: 443 for https/wss/tls, 80
// otherwise.
func ResolveAddr(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("router: invalid target url %q: %w", target, err)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("router: target url %q has no host", target)
	}

	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https", "wss", "tls":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(host, port), nil
}

// dialTimeout bounds how long Bridge waits to establish the outbound
// TCP connection before giving up on a channel.
const dialTimeout = 10 * time.Second

// Bridge dials target and bidirectionally copies bytes between it and
// stream (an already-detached raw data-channel stream) until either
// side closes. It returns once both copy directions have finished.
func Bridge(log *zap.Logger, label, target string, stream io.ReadWriteCloser) error {
	addr, err := ResolveAddr(target)
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("router: dialing %s for channel %q: %w", addr, label, err)
	}
	defer conn.Close()

	done := make(chan struct{}, 2)
	go func() {
		n, err := io.Copy(conn, stream)
		if err != nil {
			log.Debug("channel->tcp copy ended", zap.String("label", label), zap.Error(err))
		}
		log.Debug("channel->tcp copy done", zap.String("label", label), zap.Int64("bytes", n))
		_ = conn.Close()
		done <- struct{}{}
	}()
	go func() {
		n, err := io.Copy(stream, conn)
		if err != nil {
			log.Debug("tcp->channel copy ended", zap.String("label", label), zap.Error(err))
		}
		log.Debug("tcp->channel copy done", zap.String("label", label), zap.Int64("bytes", n))
		_ = stream.Close()
		done <- struct{}{}
	}()

	<-done
	<-done
	return nil
}
