package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"arena-server/internal/census"
)

// ServerInfo describes the arena to a freshly connected client.
type ServerInfo struct {
	Name        string  `msgpack:"name" json:"name"`
	Version     string  `msgpack:"version" json:"version"`
	TickRate    int     `msgpack:"tick_rate" json:"tick_rate"`
	ArenaWidth  float64 `msgpack:"arena_w" json:"arena_w"`
	ArenaHeight float64 `msgpack:"arena_h" json:"arena_h"`
	Players     int     `msgpack:"players" json:"players"`
	MaxPlayers  int     `msgpack:"max_players" json:"max_players"`
	Entities    int     `msgpack:"entities" json:"entities"`
}

// Notification is a short message shown to the player.
type Notification struct {
	Text       string
	Color      uint32 // 0xRRGGBB
	DurationMS uint32
}

// AppendCommand encodes an inbound command, the inverse of Decode. Clients
// and tests use it.
func AppendCommand(w *census.Writer, cmd Command) {
	w.Uvarint(cmd.Opcode())
	switch c := cmd.(type) {
	case Spawn:
		w.String(c.Name)
	case Input:
		w.Uvarint(uint64(c.Flags))
		w.F32(c.MouseX)
		w.F32(c.MouseY)
	case Stats:
		w.Uvarint(uint64(c.Index))
	case Upgrade:
		w.Uvarint(uint64(c.Kind))
		w.Uvarint(uint64(c.Index))
	case Chat:
		w.String(c.Text)
	case Clan:
		w.Uvarint(uint64(c.Action))
		w.String(c.Name)
	}
}

// EncodeCommand returns a standalone inbound frame
func EncodeCommand(cmd Command) []byte {
	w := census.NewWriter(32)
	AppendCommand(w, cmd)
	return w.Bytes()
}

// EncodeNotification builds a Notification frame.
func EncodeNotification(n Notification) []byte {
	w := census.NewWriter(len(n.Text) + 12)
	w.Uvarint(OpNotification)
	w.String(n.Text)
	w.Uvarint(uint64(n.Color))
	w.Uvarint(uint64(n.DurationMS))
	return w.Bytes()
}

// EncodePong builds a Pong frame
func EncodePong() []byte {
	return []byte{byte(OpPong)}
}

// EncodeServerInfo builds a ServerInfo frame: the opcode followed by the
// msgpack-encoded info.
func EncodeServerInfo(info ServerInfo) ([]byte, error) {
	body, err := msgpack.Marshal(&info)
	if err != nil {
		return nil, fmt.Errorf("protocol: server info: %w", err)
	}
	frame := make([]byte, 0, len(body)+1)
	frame = append(frame, byte(OpServerInfo))
	return append(frame, body...), nil
}

// UpdateEntry is one entity census in an Update frame.
type UpdateEntry struct {
	ID     uint32
	Census census.Census
}

// Update is a decoded Update frame.
type Update struct {
	SelfID uint32
	Self   census.Census
	Others []UpdateEntry
}

// Outbound is any decoded server frame.
type Outbound struct {
	Op           uint64
	Update       *Update
	Notification *Notification
	Info         *ServerInfo
}

// DecodeOutbound parses a server frame. The server never needs it; the test
// client and bots do.
func DecodeOutbound(frame []byte) (Outbound, error) {
	r := census.NewReader(frame)
	op, err := r.Uvarint()
	if err != nil {
		return Outbound{}, err
	}
	out := Outbound{Op: op}
	switch op {
	case OpUpdate:
		u := &Update{}
		id, err := r.Uvarint()
		if err != nil {
			return out, err
		}
		u.SelfID = uint32(id)
		if err := u.Self.Decode(r); err != nil {
			return out, err
		}
		n, err := r.Uvarint()
		if err != nil {
			return out, err
		}
		if n > uint64(r.Remaining()) {
			return out, census.ErrShortBuffer
		}
		u.Others = make([]UpdateEntry, n)
		for i := range u.Others {
			id, err := r.Uvarint()
			if err != nil {
				return out, err
			}
			u.Others[i].ID = uint32(id)
			if err := u.Others[i].Census.Decode(r); err != nil {
				return out, err
			}
		}
		out.Update = u
	case OpNotification:
		n := &Notification{}
		if n.Text, err = r.String(); err != nil {
			return out, err
		}
		color, err := r.Uvarint()
		if err != nil {
			return out, err
		}
		dur, err := r.Uvarint()
		if err != nil {
			return out, err
		}
		n.Color, n.DurationMS = uint32(color), uint32(dur)
		out.Notification = n
	case OpPong:
	case OpServerInfo:
		info := &ServerInfo{}
		if err := msgpack.Unmarshal(frame[len(frame)-r.Remaining():], info); err != nil {
			return out, fmt.Errorf("protocol: server info: %w", err)
		}
		out.Info = info
		return out, nil
	default:
		return out, fmt.Errorf("protocol: outbound opcode %d: %w", op, ErrUnknownOpcode)
	}
	if r.Remaining() != 0 {
		return out, ErrTrailingBytes
	}
	return out, nil
}
