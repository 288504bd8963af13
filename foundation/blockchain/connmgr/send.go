package connmgr

import (
	"net"
	"strconv"
	"time"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/peer"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/wire"
)

// Send dials the peer, writes one frame and closes the connection. Closing
// the connection marks the end of the frame for the receiver.
func Send(to peer.Peer, frame []byte, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", to.Addr(), timeout)
	if err != nil {
		prometheusSendFailures.Inc()
		return err
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(timeout))

	if _, err := conn.Write(frame); err != nil {
		prometheusSendFailures.Inc()
		return err
	}

	return nil
}

// Ping probes the peer by connecting and sending a PING frame. A
// successful write is the acknowledgement.
func Ping(to peer.Peer, selfPort int, timeout time.Duration) bool {
	frame, err := wire.Build(wire.MsgPing, selfPort, nil)
	if err != nil {
		return false
	}

	return Send(to, frame, timeout) == nil
}

func portString(port int) string {
	return strconv.Itoa(port)
}
