// Package protocol implements the wire format of the Trisa Body Analyze
// scale: download commands written by the host, control frames and
// measurement frames notified by the scale.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// KeySize is the length of the scale password, challenge and broadcast id.
const KeySize = 4

// EpochOffset is the Unix time of 2010-01-01T00:00:00Z, the origin of all
// timestamps exchanged with the scale.
const EpochOffset = 1262304000

// Download command opcodes (host to scale).
const (
	OpSetUTC         byte = 0x02
	OpAuthResponse   byte = 0x20
	OpSetBroadcastID byte = 0x21
	OpDisconnect     byte = 0x22
)

// Upload command opcodes (scale to host).
const (
	OpPasswordBroadcast byte = 0xA0
	OpChallengeRequest  byte = 0xA1
)

var (
	// ErrMalformedFrame is returned for frames shorter than their fixed part.
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	// ErrTruncatedFrame is returned when a frame ends before the fields its
	// header declares.
	ErrTruncatedFrame = errors.New("protocol: truncated frame")
	// ErrInvalidKeyLength is returned when a password or challenge is not
	// exactly KeySize bytes.
	ErrInvalidKeyLength = errors.New("protocol: invalid key length")
)

// BroadcastID is the host identifier written to the scale during pairing.
type BroadcastID [KeySize]byte

// ControlKind classifies a frame received on the upload command characteristic.
type ControlKind int

const (
	ControlUnrecognized ControlKind = iota
	ControlPasswordBroadcast
	ControlChallengeRequest
)

func (k ControlKind) String() string {
	switch k {
	case ControlPasswordBroadcast:
		return "password-broadcast"
	case ControlChallengeRequest:
		return "challenge-request"
	default:
		return "unrecognized"
	}
}

// ControlFrame is a classified upload command frame. Payload holds the
// password or challenge; it is nil for unrecognized frames.
type ControlFrame struct {
	Kind    ControlKind
	Payload []byte
}

// ClassifyControlFrame inspects the leading byte of an upload command frame.
//
//	0xA0 + 4 bytes: password broadcast (scale in pairing mode)
//	0xA1 + 4 bytes: authentication challenge
func ClassifyControlFrame(data []byte) (ControlFrame, error) {
	if len(data) == 0 {
		return ControlFrame{Kind: ControlUnrecognized}, nil
	}

	var kind ControlKind
	switch data[0] {
	case OpPasswordBroadcast:
		kind = ControlPasswordBroadcast
	case OpChallengeRequest:
		kind = ControlChallengeRequest
	default:
		return ControlFrame{Kind: ControlUnrecognized}, nil
	}

	if len(data) < 1+KeySize {
		return ControlFrame{}, fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrTruncatedFrame, kind, len(data)-1, KeySize)
	}
	payload := make([]byte, KeySize)
	copy(payload, data[1:1+KeySize])
	return ControlFrame{Kind: kind, Payload: payload}, nil
}

// XOR returns the byte-wise XOR of two keys of KeySize bytes.
func XOR(a, b []byte) ([]byte, error) {
	if len(a) != KeySize || len(b) != KeySize {
		return nil, fmt.Errorf("%w: got %d and %d bytes, want %d", ErrInvalidKeyLength, len(a), len(b), KeySize)
	}
	out := make([]byte, KeySize)
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out, nil
}

// EncodeSetUTC builds the clock sync command: opcode + int32 LE seconds
// since EpochOffset.
func EncodeSetUTC(now time.Time) []byte {
	buf := make([]byte, 5)
	buf[0] = OpSetUTC
	binary.LittleEndian.PutUint32(buf[1:], uint32(int32(now.Unix()-EpochOffset)))
	return buf
}

// EncodeAuthResponse answers a challenge with challenge XOR password.
func EncodeAuthResponse(challenge, password []byte) ([]byte, error) {
	key, err := XOR(challenge, password)
	if err != nil {
		return nil, err
	}
	return append([]byte{OpAuthResponse}, key...), nil
}

// EncodeSetBroadcastID builds the command assigning the host broadcast id.
func EncodeSetBroadcastID(id BroadcastID) []byte {
	return append([]byte{OpSetBroadcastID}, id[:]...)
}

// EncodeDisconnect asks the scale to drop the link.
func EncodeDisconnect() []byte {
	return []byte{OpDisconnect}
}

// CommandName returns a short label for a download command opcode, for logs.
func CommandName(op byte) string {
	switch op {
	case OpSetUTC:
		return "set-utc"
	case OpAuthResponse:
		return "auth-response"
	case OpSetBroadcastID:
		return "set-broadcast-id"
	case OpDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("0x%02x", op)
	}
}
