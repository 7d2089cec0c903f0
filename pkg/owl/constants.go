package owl

import (
	"time"

	"github.com/OCAP2/owl/internal/scan"
	"github.com/OCAP2/owl/internal/transport"
)

const (
	// BasePort is the TCP port of a server at offset 0.
	BasePort = 8000
	// BroadcastPort is the UDP port of broadcast streaming at offset 0.
	BroadcastPort = 8500
	// ScanPort is the UDP port servers answer discovery probes on.
	ScanPort = scan.Port
	// ScanMessage is the discovery probe text.
	ScanMessage = scan.Message

	// ProtocolVersion is announced in the handshake.
	ProtocolVersion = 2

	// MaxDrain bounds the chunks read per channel in one poll.
	MaxDrain = transport.MaxDrain

	// DefaultTimeout applies when an option string has no timeout.
	DefaultTimeout = 5 * time.Second

	// StreamingBroadcast is the streaming mode that delivers data over
	// UDP broadcast.
	StreamingBroadcast = 3
)

// Version is the client version sent in the handshake.
var Version = "5.0.0"
