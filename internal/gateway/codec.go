package gateway

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/l1jgo/simcore/internal/core/ecs"
	"github.com/l1jgo/simcore/internal/world"
)

// ReadFrame reads one packet frame from r.
// Wire format: [2 bytes LE: total length including header][payload].
// Returns the payload bytes (without the 2-byte length header).
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	totalLen := int(binary.LittleEndian.Uint16(header[:]))
	payloadLen := totalLen - 2
	if payloadLen <= 0 || payloadLen > 65533 {
		return nil, fmt.Errorf("invalid frame length: %d", totalLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload (%d bytes): %w", payloadLen, err)
	}
	return payload, nil
}

// WriteFrame writes one packet frame to w.
// Wire format: [2 bytes LE: len(data)+2][data].
func WriteFrame(w io.Writer, data []byte) error {
	totalLen := len(data) + 2
	var header [2]byte
	binary.LittleEndian.PutUint16(header[:], uint16(totalLen))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// Codec translates between wire payloads and game-loop values. It is the
// seam where a real client protocol plugs in; BinaryCodec is the built-in
// little-endian format used by the bundled tooling and tests.
type Codec interface {
	DecodeCommand(payload []byte) (Command, error)
	EncodeDelta(d world.Delta) []byte
}

// BinaryCodec is a fixed-layout little-endian codec.
//
// Command payload: [1B op][op-specific fields].
// Delta payload:   [1B kind][8B entity][2B map][4B x][4B y][4B value]
//
//	[4B skill][4B castle][reason as trailing bytes].
type BinaryCodec struct{}

func (BinaryCodec) DecodeCommand(payload []byte) (Command, error) {
	if len(payload) < 1 {
		return Command{}, fmt.Errorf("empty command payload")
	}
	cmd := Command{Op: Op(payload[0])}
	body := payload[1:]

	switch cmd.Op {
	case OpMove:
		if len(body) < 9 {
			return Command{}, fmt.Errorf("short move payload: %d", len(body))
		}
		cmd.DX = int32(binary.LittleEndian.Uint32(body[0:4]))
		cmd.DY = int32(binary.LittleEndian.Uint32(body[4:8]))
		cmd.Heading = body[8]
	case OpAttack:
		if len(body) < 8 {
			return Command{}, fmt.Errorf("short attack payload: %d", len(body))
		}
		cmd.Target = ecs.EntityID(binary.LittleEndian.Uint64(body[0:8]))
	case OpCastSkill:
		if len(body) < 12 {
			return Command{}, fmt.Errorf("short cast payload: %d", len(body))
		}
		cmd.SkillID = int32(binary.LittleEndian.Uint32(body[0:4]))
		cmd.Target = ecs.EntityID(binary.LittleEndian.Uint64(body[4:12]))
	case OpSay:
		cmd.Text = string(body)
	case OpDeclareWar:
		if len(body) < 4 {
			return Command{}, fmt.Errorf("short declare payload: %d", len(body))
		}
		cmd.CastleID = int32(binary.LittleEndian.Uint32(body[0:4]))
	case OpMountCatapult:
		if len(body) < 12 {
			return Command{}, fmt.Errorf("short mount payload: %d", len(body))
		}
		cmd.CastleID = int32(binary.LittleEndian.Uint32(body[0:4]))
		cmd.X = int32(binary.LittleEndian.Uint32(body[4:8]))
		cmd.Y = int32(binary.LittleEndian.Uint32(body[8:12]))
	case OpFireCatapult:
		if len(body) < 12 {
			return Command{}, fmt.Errorf("short fire payload: %d", len(body))
		}
		cmd.CastleID = int32(binary.LittleEndian.Uint32(body[0:4]))
		cmd.X = int32(binary.LittleEndian.Uint32(body[4:8]))
		cmd.Y = int32(binary.LittleEndian.Uint32(body[8:12]))
	default:
		return Command{}, fmt.Errorf("unknown command op: %d", payload[0])
	}
	return cmd, nil
}

func (BinaryCodec) EncodeDelta(d world.Delta) []byte {
	buf := make([]byte, 31, 31+len(d.Reason))
	buf[0] = byte(d.Kind)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(d.Entity))
	binary.LittleEndian.PutUint16(buf[9:11], uint16(d.Pos.MapID))
	binary.LittleEndian.PutUint32(buf[11:15], uint32(d.Pos.X))
	binary.LittleEndian.PutUint32(buf[15:19], uint32(d.Pos.Y))
	binary.LittleEndian.PutUint32(buf[19:23], uint32(d.Value))
	binary.LittleEndian.PutUint32(buf[23:27], uint32(d.SkillID))
	binary.LittleEndian.PutUint32(buf[27:31], uint32(d.CastleID))
	buf = append(buf, d.Reason...)
	return buf
}
