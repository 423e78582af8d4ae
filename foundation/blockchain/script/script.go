// Package script implements the flat command list used to lock and unlock
// transaction outputs. There is no interpreter, scripts are only serialized
// and pattern matched against the pay-to-pubkey-hash shape.
package script

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformed is returned when a serialized or JSON script can't be parsed.
var ErrMalformed = errors.New("malformed script")

// Opcode represents the recognized operations. Each opcode serializes as a
// single byte taken from the reserved tag range.
type Opcode byte

// Set of recognized opcodes.
const (
	OpDup         Opcode = 0xf1
	OpHash160     Opcode = 0xf2
	OpEqual       Opcode = 0xf3
	OpEqualVerify Opcode = 0xf4
	OpCheckSig    Opcode = 0xf5
)

// Single byte values from tagInt through tagLast never start a data push
// length. Lengths in that range use the 0xfd form instead.
const (
	tagInt  byte = 0xf0
	tagLast byte = 0xfc

	len16 byte = 0xfd
	len32 byte = 0xfe
	len64 byte = 0xff
)

var opNames = map[Opcode]string{
	OpDup:         "OP_DUP",
	OpHash160:     "OP_HASH160",
	OpEqual:       "OP_EQUAL",
	OpEqualVerify: "OP_EQUALVERIFY",
	OpCheckSig:    "OP_CHECKSIG",
}

// String returns the conventional name for the opcode.
func (op Opcode) String() string {
	if name, exists := opNames[op]; exists {
		return name
	}
	return fmt.Sprintf("OP_UNKNOWN_%02x", byte(op))
}

// ParseOpcode returns the opcode for the specified name.
func ParseOpcode(name string) (Opcode, error) {
	for op, n := range opNames {
		if n == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown opcode %q", ErrMalformed, name)
}

// =============================================================================

// Kind identifies which variant a Command holds.
type Kind uint8

// Set of command kinds.
const (
	KindData Kind = iota + 1
	KindInt
	KindOp
)

// Command is a single script element: a byte string, an integer literal
// or an opcode.
type Command struct {
	kind Kind
	data []byte
	num  int64
	op   Opcode
}

// Data constructs a byte string command. The bytes are copied.
func Data(b []byte) Command {
	return Command{kind: KindData, data: append([]byte{}, b...)}
}

// Int constructs an integer literal command.
func Int(n int64) Command {
	return Command{kind: KindInt, num: n}
}

// Op constructs an opcode command.
func Op(op Opcode) Command {
	return Command{kind: KindOp, op: op}
}

// Kind returns the variant held by the command.
func (c Command) Kind() Kind {
	return c.kind
}

// Bytes returns a copy of the byte string if this is a data command.
func (c Command) Bytes() ([]byte, bool) {
	if c.kind != KindData {
		return nil, false
	}
	return append([]byte{}, c.data...), true
}

// Int64 returns the integer if this is an integer command.
func (c Command) Int64() (int64, bool) {
	if c.kind != KindInt {
		return 0, false
	}
	return c.num, true
}

// Opcode returns the opcode if this is an opcode command.
func (c Command) Opcode() (Opcode, bool) {
	if c.kind != KindOp {
		return 0, false
	}
	return c.op, true
}

// IsOp reports whether the command is the specified opcode.
func (c Command) IsOp(op Opcode) bool {
	return c.kind == KindOp && c.op == op
}

// String implements the fmt.Stringer interface.
func (c Command) String() string {
	switch c.kind {
	case KindData:
		return hex.EncodeToString(c.data)
	case KindInt:
		return fmt.Sprintf("%d", c.num)
	case KindOp:
		return c.op.String()
	}
	return "<invalid>"
}

// =============================================================================

// Script is an immutable ordered list of commands. A modified script is
// always a new value.
type Script struct {
	cmds []Command
}

// New constructs a script from the specified commands.
func New(cmds ...Command) Script {
	if len(cmds) == 0 {
		return Script{}
	}
	return Script{cmds: append([]Command{}, cmds...)}
}

// Len returns the number of commands in the script.
func (s Script) Len() int {
	return len(s.cmds)
}

// Empty reports whether the script holds no commands.
func (s Script) Empty() bool {
	return len(s.cmds) == 0
}

// Command returns the command at index i.
func (s Script) Command(i int) Command {
	return s.cmds[i]
}

// Commands returns a copy of the command list.
func (s Script) Commands() []Command {
	return append([]Command{}, s.cmds...)
}

// Equal reports whether both scripts serialize to the same bytes.
func (s Script) Equal(other Script) bool {
	return bytes.Equal(s.Serialize(), other.Serialize())
}

// String implements the fmt.Stringer interface.
func (s Script) String() string {
	parts := make([]string, len(s.cmds))
	for i, c := range s.cmds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Serialize returns the binary form of the script. This is a pure function
// of the command list.
func (s Script) Serialize() []byte {
	var buf bytes.Buffer
	for _, c := range s.cmds {
		switch c.kind {
		case KindData:
			writeLength(&buf, uint64(len(c.data)))
			buf.Write(c.data)

		case KindInt:
			var b [9]byte
			b[0] = tagInt
			binary.LittleEndian.PutUint64(b[1:], uint64(c.num))
			buf.Write(b[:])

		case KindOp:
			buf.WriteByte(byte(c.op))
		}
	}
	return buf.Bytes()
}

// Parse is the inverse of Serialize.
func Parse(b []byte) (Script, error) {
	var cmds []Command

	for i := 0; i < len(b); {
		tag := b[i]
		i++

		switch {
		case tag < tagInt:
			n := int(tag)
			if len(b)-i < n {
				return Script{}, fmt.Errorf("%w: data push of %d bytes overruns script", ErrMalformed, n)
			}
			cmds = append(cmds, Data(b[i:i+n]))
			i += n

		case tag == tagInt:
			if len(b)-i < 8 {
				return Script{}, fmt.Errorf("%w: truncated integer literal", ErrMalformed)
			}
			cmds = append(cmds, Int(int64(binary.LittleEndian.Uint64(b[i:]))))
			i += 8

		case tag <= tagLast:
			op := Opcode(tag)
			if _, exists := opNames[op]; !exists {
				return Script{}, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformed, tag)
			}
			cmds = append(cmds, Op(op))

		default:
			n, size, err := readLength(tag, b[i:])
			if err != nil {
				return Script{}, err
			}
			i += size
			if uint64(len(b)-i) < n {
				return Script{}, fmt.Errorf("%w: data push of %d bytes overruns script", ErrMalformed, n)
			}
			cmds = append(cmds, Data(b[i:i+int(n)]))
			i += int(n)
		}
	}

	return Script{cmds: cmds}, nil
}

// writeLength writes a data push length prefix.
func writeLength(buf *bytes.Buffer, n uint64) {
	switch {
	case n < uint64(tagInt):
		buf.WriteByte(byte(n))
	case n <= math.MaxUint16:
		var b [3]byte
		b[0] = len16
		binary.LittleEndian.PutUint16(b[1:], uint16(n))
		buf.Write(b[:])
	case n <= math.MaxUint32:
		var b [5]byte
		b[0] = len32
		binary.LittleEndian.PutUint32(b[1:], uint32(n))
		buf.Write(b[:])
	default:
		var b [9]byte
		b[0] = len64
		binary.LittleEndian.PutUint64(b[1:], n)
		buf.Write(b[:])
	}
}

// readLength decodes a multi byte data push length and rejects any form
// that writeLength would not have produced.
func readLength(tag byte, b []byte) (uint64, int, error) {
	var n, floor uint64
	var size int

	switch tag {
	case len16:
		size, floor = 2, uint64(tagInt)
		if len(b) < size {
			break
		}
		n = uint64(binary.LittleEndian.Uint16(b))
	case len32:
		size, floor = 4, math.MaxUint16+1
		if len(b) < size {
			break
		}
		n = uint64(binary.LittleEndian.Uint32(b))
	case len64:
		size, floor = 8, math.MaxUint32+1
		if len(b) < size {
			break
		}
		n = binary.LittleEndian.Uint64(b)
	}

	if len(b) < size {
		return 0, 0, fmt.Errorf("%w: truncated length prefix", ErrMalformed)
	}
	if n < floor {
		return 0, 0, fmt.Errorf("%w: non canonical length prefix", ErrMalformed)
	}

	return n, size, nil
}

// =============================================================================

// MarshalJSON renders opcodes as their names, data as hex strings and
// integers as numbers.
func (s Script) MarshalJSON() ([]byte, error) {
	out := make([]any, len(s.cmds))
	for i, c := range s.cmds {
		switch c.kind {
		case KindData:
			out[i] = hex.EncodeToString(c.data)
		case KindInt:
			out[i] = c.num
		case KindOp:
			out[i] = c.op.String()
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (s *Script) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Script{}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	cmds := make([]Command, 0, len(raw))
	for _, r := range raw {
		var str string
		if err := json.Unmarshal(r, &str); err == nil {
			if strings.HasPrefix(str, "OP_") {
				op, err := ParseOpcode(str)
				if err != nil {
					return err
				}
				cmds = append(cmds, Op(op))
				continue
			}

			b, err := hex.DecodeString(str)
			if err != nil {
				return fmt.Errorf("%w: data %q is not hex", ErrMalformed, str)
			}
			cmds = append(cmds, Data(b))
			continue
		}

		var n int64
		if err := json.Unmarshal(r, &n); err != nil {
			return fmt.Errorf("%w: command %s", ErrMalformed, string(r))
		}
		cmds = append(cmds, Int(n))
	}

	*s = New(cmds...)
	return nil
}
