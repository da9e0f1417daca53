package hap

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// exchange issues HTTP request/response pairs over a single
// connection, plaintext during the handshakes and encrypted once the
// caller swaps in the session conn. HAP speaks HTTP/1.1 with exactly
// one request in flight, so requests are written and responses read
// directly on the conn.
type exchange struct {
	conn net.Conn
	br   *bufio.Reader
	host string

	// timeout bounds one round trip when the context carries no
	// earlier deadline.
	timeout time.Duration
}

func newExchange(conn net.Conn, host string, timeout time.Duration) *exchange {
	return &exchange{
		conn:    conn,
		br:      bufio.NewReader(conn),
		host:    host,
		timeout: timeout,
	}
}

// upgrade swaps the underlying connection, dropping any buffered
// plaintext. Called once after pair-verify to move to the encrypted
// conn; the handshake leaves no pipelined bytes behind.
func (e *exchange) upgrade(conn net.Conn) {
	e.conn = conn
	e.br = bufio.NewReader(conn)
}

// roundTrip writes one request and reads its complete response body.
func (e *exchange) roundTrip(method, path, contentType string, body []byte) (status int, payload []byte, err error) {
	req := &http.Request{
		Method:     method,
		URL:        mustParseRequestURL(e.host, path),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Host:       e.host,
		Header:     make(http.Header),
	}
	if body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))
		req.Header.Set("Content-Type", contentType)
	}

	if err := req.Write(e.conn); err != nil {
		return 0, nil, fmt.Errorf("hap: writing request: %w", err)
	}

	res, err := http.ReadResponse(e.br, req)
	if err != nil {
		return 0, nil, fmt.Errorf("hap: reading response: %w", err)
	}
	defer res.Body.Close()

	payload, err = io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("hap: reading response body: %w", err)
	}
	return res.StatusCode, payload, nil
}

// post issues a POST and requires a 200 response. Used by the two
// handshake endpoints.
func (e *exchange) post(path, contentType string, body []byte) ([]byte, error) {
	status, payload, err := e.roundTrip(http.MethodPost, path, contentType, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrBadStatus, path, status)
	}
	return payload, nil
}

// deadline arms the connection deadline for one round trip. The
// earlier of the context deadline and the configured timeout wins; no
// deadline at all leaves the connection unbounded.
func (e *exchange) deadline(ctxDeadline time.Time, hasCtxDeadline bool) error {
	deadline := ctxDeadline
	if e.timeout > 0 {
		byTimeout := time.Now().Add(e.timeout)
		if !hasCtxDeadline || byTimeout.Before(deadline) {
			deadline = byTimeout
		}
	}
	if deadline.IsZero() {
		return nil
	}
	return e.conn.SetDeadline(deadline)
}

// mustParseRequestURL builds the request URL for a HAP endpoint path.
// Paths are fixed strings so parsing cannot fail on valid input.
func mustParseRequestURL(host, path string) *url.URL {
	u, err := url.Parse("http://" + host + path)
	if err != nil {
		panic("hap: bad endpoint path " + strconv.Quote(path))
	}
	return u
}
