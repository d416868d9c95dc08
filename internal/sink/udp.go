package sink

import (
	"net"

	"github.com/ausocean/utils/logging"
)

// UDPSender best-effort-sends JSON metadata datagrams to a configured
// host:port over a dialed net.Conn. Send errors are swallowed; metadata
// delivery is advisory, not guaranteed.
type UDPSender struct {
	conn net.Conn
	log  logging.Logger
}

// NewUDPSender dials addr ("host:port") over UDP. The connection is
// best-effort: if the dial fails, Send becomes a silent no-op rather than
// blocking construction on a possibly-unreachable metadata consumer.
func NewUDPSender(addr string, log logging.Logger) *UDPSender {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		log.Warning(pkg+"udp dial failed, metadata sink disabled", "addr", addr, "error", err.Error())
		return &UDPSender{log: log}
	}
	return &UDPSender{conn: conn, log: log}
}

// Send writes payload as a single datagram. Errors are swallowed per
// this system's best-effort delivery policy for UDP metadata.
func (u *UDPSender) Send(payload []byte) {
	if u.conn == nil {
		return
	}
	_, _ = u.conn.Write(payload)
}

// Close releases the underlying UDP socket.
func (u *UDPSender) Close() error {
	if u.conn == nil {
		return nil
	}
	return u.conn.Close()
}
