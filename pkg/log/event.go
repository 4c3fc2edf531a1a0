package log

import "time"

// Event is one captured protocol occurrence. Exactly one of Frame, Command,
// StateChange or Error is set. Fields use integer CBOR keys so a capture of a
// long-running device stays small.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`
	LocalRole    Role      `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer's ip:port once the socket is up.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Host is the name the client was asked to reach, before resolution.
	Host string `cbor:"8,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction is relative to the process that logged the event.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	}
	return "UNKNOWN"
}

// Layer is where in the stack an event was observed.
type Layer uint8

const (
	// LayerTransport sees length-prefixed frames as raw bytes.
	LayerTransport Layer = 0
	// LayerWire sees decoded auth and command exchanges.
	LayerWire Layer = 1
	// LayerSession sees the driver's connect/command/backoff cycle.
	LayerSession Layer = 2
)

func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSession:
		return "SESSION"
	}
	return "UNKNOWN"
}

// Category groups events for filtering.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 2
	CategoryError   Category = 3
)

func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Role tells which end of the link wrote the event.
type Role uint8

const (
	// RoleClient is the ticker device.
	RoleClient Role = 0
	// RoleServer is the market data server.
	RoleServer Role = 1
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleServer:
		return "SERVER"
	}
	return "UNKNOWN"
}

// FrameEvent is a single frame as written to or read from the socket.
type FrameEvent struct {
	// Size counts the 4-byte length prefix.
	Size int    `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated is set when Data holds only the head of the frame.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// CommandEvent captures one command exchange at the wire layer.
type CommandEvent struct {
	// Name is the command name ("auth" for the token exchange).
	Name string `cbor:"1,keyasint"`

	// Status is the command status code (0 on success).
	Status int `cbor:"2,keyasint"`

	// Payload is the decoded request payload or response document.
	Payload any `cbor:"3,keyasint,omitempty"`

	// RoundTrip is the time from send to decoded response.
	RoundTrip time.Duration `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent records a transition of a handle or of the session driver.
// States are the String forms of the owning package's state type.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity names the state machine a StateChangeEvent belongs to.
type StateEntity uint8

const (
	// StateEntityConnection is a transport handle.
	StateEntityConnection StateEntity = 0
	// StateEntitySession is the session driver.
	StateEntitySession StateEntity = 1
)

func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	}
	return "UNKNOWN"
}

// ErrorEventData describes a failure. Code carries the transport or command
// status code when the failing layer defines one.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Code    *int   `cbor:"3,keyasint,omitempty"`

	// Context is the operation that failed, e.g. "connect" or "get_time".
	Context string `cbor:"4,keyasint,omitempty"`
}
