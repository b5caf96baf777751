// Package protocol defines the binary frames exchanged with clients. Every
// frame starts with a varuint opcode; values use the census codec.
package protocol

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"arena-server/internal/census"
)

// Client -> server opcodes
const (
	OpSpawn uint64 = iota
	OpInput
	OpStats
	OpUpgrade
	OpPing
	OpChat
	OpClan
)

// Server -> client opcodes
const (
	OpUpdate uint64 = iota
	OpNotification
	OpPong
	OpServerInfo
)

const (
	MaxNameLen = 16
	MaxChatLen = 120
)

var (
	ErrUnknownOpcode       = errors.New("protocol: unknown opcode")
	ErrInvalidDiscriminant = errors.New("protocol: invalid enum discriminant")
	ErrTrailingBytes       = errors.New("protocol: trailing bytes after frame")
)

// InputFlags is the client input bitmask.
type InputFlags uint32

const (
	InputUp InputFlags = 1 << iota
	InputDown
	InputLeft
	InputRight
	InputShoot
	InputRepel
	InputLevelUp

	inputMask = InputUp | InputDown | InputLeft | InputRight | InputShoot | InputRepel | InputLevelUp
)

// Has reports whether every bit in f is set
func (i InputFlags) Has(f InputFlags) bool {
	return i&f == f
}

// UpgradeKind selects which identity an Upgrade command replaces.
type UpgradeKind uint8

const (
	UpgradeBody UpgradeKind = iota
	UpgradeTurret
)

// Command is one decoded inbound frame.
type Command interface {
	Opcode() uint64
}

type Spawn struct {
	Name string
}

type Input struct {
	Flags  InputFlags
	MouseX float32
	MouseY float32
}

type Stats struct {
	Index uint32
}

type Upgrade struct {
	Kind  UpgradeKind
	Index uint32
}

type Ping struct{}

type Chat struct {
	Text string
}

// Clan carries a clan action for the social layer; the simulation ignores it.
type Clan struct {
	Action uint32
	Name   string
}

func (Spawn) Opcode() uint64   { return OpSpawn }
func (Input) Opcode() uint64   { return OpInput }
func (Stats) Opcode() uint64   { return OpStats }
func (Upgrade) Opcode() uint64 { return OpUpgrade }
func (Ping) Opcode() uint64    { return OpPing }
func (Chat) Opcode() uint64    { return OpChat }
func (Clan) Opcode() uint64    { return OpClan }

// Decode parses one inbound frame. It never panics; any malformed or
// truncated frame yields an error and the caller drops the connection.
func Decode(frame []byte) (Command, error) {
	r := census.NewReader(frame)
	op, err := r.Uvarint()
	if err != nil {
		return nil, fmt.Errorf("protocol: opcode: %w", err)
	}

	var cmd Command
	switch op {
	case OpSpawn:
		name, err := r.String()
		if err != nil {
			return nil, fmt.Errorf("protocol: spawn name: %w", err)
		}
		cmd = Spawn{Name: SanitizeText(name, MaxNameLen)}
	case OpInput:
		flags, err := r.Uvarint()
		if err != nil {
			return nil, fmt.Errorf("protocol: input flags: %w", err)
		}
		if flags&^uint64(inputMask) != 0 {
			return nil, fmt.Errorf("protocol: input flags %#x: %w", flags, ErrInvalidDiscriminant)
		}
		mx, err := r.F32()
		if err != nil {
			return nil, fmt.Errorf("protocol: input mouse: %w", err)
		}
		my, err := r.F32()
		if err != nil {
			return nil, fmt.Errorf("protocol: input mouse: %w", err)
		}
		cmd = Input{Flags: InputFlags(flags), MouseX: mx, MouseY: my}
	case OpStats:
		idx, err := r.Uvarint()
		if err != nil {
			return nil, fmt.Errorf("protocol: stat index: %w", err)
		}
		if idx > 0xFF {
			return nil, fmt.Errorf("protocol: stat index %d: %w", idx, ErrInvalidDiscriminant)
		}
		cmd = Stats{Index: uint32(idx)}
	case OpUpgrade:
		kind, err := r.Uvarint()
		if err != nil {
			return nil, fmt.Errorf("protocol: upgrade kind: %w", err)
		}
		if kind > uint64(UpgradeTurret) {
			return nil, fmt.Errorf("protocol: upgrade kind %d: %w", kind, ErrInvalidDiscriminant)
		}
		idx, err := r.Uvarint()
		if err != nil {
			return nil, fmt.Errorf("protocol: upgrade index: %w", err)
		}
		if idx > 0xFF {
			return nil, fmt.Errorf("protocol: upgrade index %d: %w", idx, ErrInvalidDiscriminant)
		}
		cmd = Upgrade{Kind: UpgradeKind(kind), Index: uint32(idx)}
	case OpPing:
		cmd = Ping{}
	case OpChat:
		text, err := r.String()
		if err != nil {
			return nil, fmt.Errorf("protocol: chat: %w", err)
		}
		cmd = Chat{Text: SanitizeText(text, MaxChatLen)}
	case OpClan:
		action, err := r.Uvarint()
		if err != nil {
			return nil, fmt.Errorf("protocol: clan action: %w", err)
		}
		name, err := r.String()
		if err != nil {
			return nil, fmt.Errorf("protocol: clan name: %w", err)
		}
		cmd = Clan{Action: uint32(action), Name: SanitizeText(name, MaxNameLen)}
	default:
		return nil, fmt.Errorf("protocol: opcode %d: %w", op, ErrUnknownOpcode)
	}

	if r.Remaining() != 0 {
		return nil, fmt.Errorf("protocol: opcode %d: %d bytes: %w", op, r.Remaining(), ErrTrailingBytes)
	}
	return cmd, nil
}

// SanitizeText trims whitespace, drops control characters and caps the rune count.
func SanitizeText(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == maxRunes {
			break
		}
		if r < 0x20 || r == 0x7F || r == utf8.RuneError {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
