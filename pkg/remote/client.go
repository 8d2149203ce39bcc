package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/barnettlynn/mfctools/pkg/iso14443a"
)

// DefaultRequestTimeout bounds one round trip to the bridge. The frame
// waiting time itself is enforced by the bridge's link.
const DefaultRequestTimeout = 5 * time.Second

// Client is an iso14443a.Poller whose link lives behind a Server.
type Client struct {
	conn    *quic.Conn
	stream  *quic.Stream
	timeout time.Duration

	mu   sync.Mutex
	data iso14443a.Data
	resp *iso14443a.Buffer
}

// Dial connects to a bridge and fetches the identity of the card it has
// selected. While another session owns the bridge the identity request
// waits, bounded by the request timeout. A nil tlsConf accepts a
// self-signed certificate.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config) (*Client, error) {
	if tlsConf == nil {
		tlsConf = ClientTLSConfig()
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return nil, fmt.Errorf("open stream: %w", err)
	}
	c := &Client{
		conn:    conn,
		stream:  stream,
		timeout: DefaultRequestTimeout,
		resp:    iso14443a.NewBuffer(maxFrameBytes),
	}
	if err := c.refreshData(opData); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// SetRequestTimeout changes the per-request transport deadline.
func (c *Client) SetRequestTimeout(d time.Duration) { c.timeout = d }

// Close ends the session.
func (c *Client) Close() error {
	c.stream.Close()
	return c.conn.CloseWithError(0, "client closed")
}

// roundTrip sends one request and fills rx with the answer. Transport
// failures are reported as communication errors.
func (c *Client) roundTrip(op byte, fwt uint32, tx, rx *iso14443a.Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		_ = c.stream.SetDeadline(time.Now().Add(c.timeout))
	}
	if err := writeRequest(c.stream, op, fwt, tx); err != nil {
		return fmt.Errorf("%w: remote %s: %v", iso14443a.ErrCommunication, opName(op), err)
	}
	status, err := readResponse(c.stream, rx)
	if err != nil {
		return fmt.Errorf("%w: remote %s: %v", iso14443a.ErrCommunication, opName(op), err)
	}
	return statusError(status)
}

func (c *Client) refreshData(op byte) error {
	if err := c.roundTrip(op, 0, nil, c.resp); err != nil {
		return err
	}
	d, err := decodeData(c.resp)
	if err != nil {
		return err
	}
	c.data = d
	return nil
}

// SendStandardFrame implements iso14443a.Poller.
func (c *Client) SendStandardFrame(tx, rx *iso14443a.Buffer, fwt uint32) error {
	return c.roundTrip(opStandard, fwt, tx, rx)
}

// Txrx implements iso14443a.Poller.
func (c *Client) Txrx(tx, rx *iso14443a.Buffer, fwt uint32) error {
	return c.roundTrip(opRaw, fwt, tx, rx)
}

// TxrxCustomParity implements iso14443a.Poller.
func (c *Client) TxrxCustomParity(tx, rx *iso14443a.Buffer, fwt uint32) error {
	return c.roundTrip(opCustomParity, fwt, tx, rx)
}

// Data implements iso14443a.Poller. It returns the identity fetched at
// Dial or by the last Activate.
func (c *Client) Data() *iso14443a.Data { return &c.data }

// SetIdle implements iso14443a.Poller.
func (c *Client) SetIdle() {
	if err := c.roundTrip(opSetIdle, 0, nil, c.resp); err != nil {
		slog.Debug("remote set idle", "err", err)
	}
}

// Activate implements iso14443a.Activator.
func (c *Client) Activate() error {
	return c.refreshData(opActivate)
}

var (
	_ iso14443a.Poller    = (*Client)(nil)
	_ iso14443a.Activator = (*Client)(nil)
)
