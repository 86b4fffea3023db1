package bridge

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Client is a bridge protocol client, grounded on
// original_source/.../RegisterClient.java's request/response shapes.
// Unlike that Java client, Wait sends only as many optional trailing
// arguments as the caller supplies, matching spec §4.K's `i <addr>
// <expected> [<mask> [<cycles> [<millis>]]]` grammar instead of always
// padding to five arguments.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a bridge server at addr (e.g. "localhost:1088").
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "bridge: dial")
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// ParseResponse splits one response line into its code and payload
// (the text after ": ", or "" if there is none).
func ParseResponse(line string) (Code, string, error) {
	line = strings.TrimRight(line, "\r\n")
	header := line
	payload := ""
	if idx := strings.Index(line, ": "); idx >= 0 {
		header = line[:idx]
		payload = line[idx+2:]
	}
	fields := strings.SplitN(header, " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return 0, "", errors.Errorf("bridge: malformed response %q", line)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", errors.Wrapf(err, "bridge: malformed response code in %q", line)
	}
	return Code(n), payload, nil
}

// roundTrip sends one request line and returns the parsed response.
func (c *Client) roundTrip(line string) (Code, string, error) {
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		return 0, "", errors.Wrap(err, "bridge: write request")
	}
	resp, err := c.r.ReadString('\n')
	if err != nil {
		return 0, "", errors.Wrap(err, "bridge: read response")
	}
	return ParseResponse(resp)
}

// errIfNotOK turns a non-101 response into a Go error carrying the
// server's status tag and payload.
func errIfNotOK(code Code, payload string) error {
	if code == CodeOK {
		return nil
	}
	return errors.Errorf("bridge: %s", FormatResponse(code, payload))
}

// Version requests the server's version string.
func (c *Client) Version() (string, error) {
	code, payload, err := c.roundTrip("v")
	if err != nil {
		return "", err
	}
	return payload, errIfNotOK(code, payload)
}

// Help requests the server's command summary.
func (c *Client) Help() (string, error) {
	code, payload, err := c.roundTrip("h")
	if err != nil {
		return "", err
	}
	return payload, errIfNotOK(code, payload)
}

// Provides asks whether addr is backed by a mapped facade.
func (c *Client) Provides(addr uint32) (bool, error) {
	code, payload, err := c.roundTrip(fmt.Sprintf("p %d", addr))
	if err != nil {
		return false, err
	}
	if err := errIfNotOK(code, payload); err != nil {
		return false, err
	}
	return strconv.ParseBool(payload)
}

// Label asks for addr's register name.
func (c *Client) Label(addr uint32) (string, error) {
	code, payload, err := c.roundTrip(fmt.Sprintf("l %d", addr))
	if err != nil {
		return "", err
	}
	return payload, errIfNotOK(code, payload)
}

// Read reads the word at addr.
func (c *Client) Read(addr uint32) (uint32, error) {
	code, payload, err := c.roundTrip(fmt.Sprintf("r %d", addr))
	if err != nil {
		return 0, err
	}
	if err := errIfNotOK(code, payload); err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(payload, 10, 32)
	return uint32(v), err
}

// Write writes value to addr.
func (c *Client) Write(addr, value uint32) error {
	code, payload, err := c.roundTrip(fmt.Sprintf("w %d %d", addr, value))
	if err != nil {
		return err
	}
	return errIfNotOK(code, payload)
}

// Wait blocks (from the server's perspective) until addr's value
// matches expected, returning the observed value. opts supplies, in
// order, mask, cyclesTimeout, and millisTimeout; trailing options may
// be omitted, matching the server's optional-argument grammar.
func (c *Client) Wait(addr, expected uint32, opts ...uint32) (uint32, error) {
	line := fmt.Sprintf("i %d %d", addr, expected)
	for _, opt := range opts {
		line += fmt.Sprintf(" %d", opt)
	}
	code, payload, err := c.roundTrip(line)
	if err != nil {
		return 0, err
	}
	if err := errIfNotOK(code, payload); err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(payload, 10, 32)
	return uint32(v), err
}

// Close sends `q` and closes the connection. The server sends no
// response to `q`; Close does not wait for one.
func (c *Client) Close() error {
	fmt.Fprintf(c.conn, "q\n")
	return c.conn.Close()
}
