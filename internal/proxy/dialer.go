package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// tunnelDialer returns a dial function that reaches addr through the proxy at u.
func tunnelDialer(p Protocol, u *url.URL, base *net.Dialer) (dialFunc, error) {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS:
		return (&connectDialer{proxyURL: u, base: base, useTLS: p == ProtocolHTTPS}).DialContext, nil
	case ProtocolSOCKS5:
		return socks5Dialer(u, base)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", p)
	}
}

// connectDialer opens a tunnel with an HTTP CONNECT request.
type connectDialer struct {
	proxyURL *url.URL
	base     *net.Dialer
	useTLS   bool
}

func (d *connectDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := d.base.DialContext(ctx, "tcp", d.proxyURL.Host)
	if err != nil {
		return nil, &ProbeError{Kind: KindProxyConnect, Err: err}
	}

	if d.useTLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: d.proxyURL.Hostname()})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &ProbeError{Kind: KindConnector, Err: fmt.Errorf("tls handshake with proxy: %w", err)}
		}
		conn = tlsConn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if u := d.proxyURL.User; u != nil {
		pass, _ := u.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
		req.Header.Set("Proxy-Authorization", "Basic "+cred)
	}

	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, &ProbeError{Kind: KindConnector, Err: fmt.Errorf("write CONNECT: %w", err)}
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, &ProbeError{Kind: KindConnector, Err: fmt.Errorf("read CONNECT response: %w", err)}
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, &ProbeError{Kind: KindProxyRejected, Err: fmt.Errorf("proxy refused tunnel: %s", resp.Status)}
	}

	_ = conn.SetDeadline(time.Time{})
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func socks5Dialer(u *url.URL, base *net.Dialer) (dialFunc, error) {
	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}

	d, err := proxy.SOCKS5("tcp", u.Host, auth, base)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("SOCKS5 dialer does not support contexts")
	}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := cd.DialContext(ctx, network, addr)
		if err != nil {
			return nil, classifySocks(err)
		}
		return conn, nil
	}, nil
}

// classifySocks separates "could not reach the proxy" and "proxy said no" from
// handshake garbage.
func classifySocks(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var inner *net.OpError
		if errors.As(opErr.Err, &inner) && inner.Op == "dial" {
			return &ProbeError{Kind: KindProxyConnect, Err: err}
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "authentication failed") || strings.Contains(msg, "no acceptable authentication methods") {
		return &ProbeError{Kind: KindProxyRejected, Err: err}
	}
	return &ProbeError{Kind: KindConnector, Err: err}
}
