// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

// Package alkanes encodes and decodes the metaprotocol's opcode-based
// calldata carried in a zero-value data output of the transaction.
package alkanes

import (
	"bytes"
	"errors"
	"math/big"
	"slices"

	"github.com/aviate-labs/leb128"
	"github.com/btcsuite/btcd/txscript"

	"github.com/BoostyLabs/alkamint/internal/sequencereader"
)

// ErrMalformedPayload defines an invalid protostone payload.
var ErrMalformedPayload = errors.New("malformed protostone payload")

// ErrTruncated defines that the payload misses required fields.
var ErrTruncated = errors.New("truncated protostone payload")

// Tag defines a protostone field key.
type Tag uint64

const (
	// TagBody marks the start of the edict list; everything after it is
	// groups of four integers.
	TagBody Tag = 0
	// TagPointer holds the output index receiving unallocated balance.
	TagPointer Tag = 22
	// TagCalldata holds contract call integers, one per tagged value in
	// original order.
	TagCalldata Tag = 83
)

// BigInt returns Tag as *big.Int.
func (t Tag) BigInt() *big.Int {
	return new(big.Int).SetUint64(uint64(t))
}

// maxPushSize bounds a single OP_DATA push within the envelope.
const maxPushSize = 75

// Protostone abstractly defines the protocol message fields.
type Protostone struct {
	Calldata []*big.Int
	Edicts   []Edict
	Pointer  *uint32
}

// Serialize returns Protostone as LEB128-encoded payload bytes.
func (stone *Protostone) Serialize() ([]byte, error) {
	sequence := make([]*big.Int, 0, len(stone.Calldata)*2+len(stone.Edicts)*4+3)
	for _, val := range stone.Calldata {
		sequence = append(sequence, TagCalldata.BigInt(), val)
	}

	if stone.Pointer != nil {
		sequence = append(sequence, TagPointer.BigInt(), big.NewInt(int64(*stone.Pointer)))
	}

	if len(stone.Edicts) > 0 {
		sequence = append(sequence, TagBody.BigInt())
		sequence = append(sequence, EdictsToIntSeq(stone.Edicts)...)
	}

	payload := make([]byte, 0)
	for _, num := range sequence {
		encoded, err := leb128.EncodeUnsigned(num)
		if err != nil {
			return nil, err
		}

		payload = append(payload, encoded...)
	}

	return payload, nil
}

// IntoScript returns Protostone as script bytes: OP_RETURN, OP_13 and the
// payload chunked into OP_DATA pushes.
func (stone *Protostone) IntoScript() ([]byte, error) {
	payload, err := stone.Serialize()
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, ErrMalformedPayload
	}

	script := []byte{txscript.OP_RETURN, txscript.OP_13}
	for len(payload) > 0 {
		chunk := min(len(payload), maxPushSize)
		script = append(script, byte(chunk))
		script = append(script, payload[:chunk]...)
		payload = payload[chunk:]
	}

	return script, nil
}

// ParseProtostone parses Protostone from script bytes.
func ParseProtostone(script []byte) (*Protostone, error) {
	payload, err := preparePayload(script)
	if err != nil {
		return nil, err
	}

	sequence, err := payloadIntoIntSequence(payload)
	if err != nil {
		return nil, err
	}

	stone := new(Protostone)

	return stone, stone.parse(sequencereader.New(sequence))
}

// IsPossibleProtostone returns true if the script starts with the protocol
// bytes sequence.
func IsPossibleProtostone(script []byte) bool {
	switch {
	case len(script) < 4: // OP_RETURN + OP_13 + OP_DATA_<num> + data(at least 1 byte).
		return false
	case script[0] != txscript.OP_RETURN:
		return false
	case script[1] != txscript.OP_13:
		return false
	case script[2] < txscript.OP_DATA_1 || script[2] > txscript.OP_DATA_75:
		return false
	}

	return true
}

// parse fills protostone fields from the integer sequence.
func (stone *Protostone) parse(sr *sequencereader.SequenceReader[*big.Int]) error {
	for sr.HasNext() {
		tagBigInt, _ := sr.Next() // skip error due to loop condition check.
		tag := Tag(tagBigInt.Uint64())
		if tag == TagBody {
			edicts, err := ParseEdictsFromIntSeq(sr)
			if err != nil {
				return err
			}

			stone.Edicts = edicts
			break
		}

		value, err := sr.Next()
		if err != nil {
			return ErrTruncated
		}

		switch tag {
		case TagCalldata:
			stone.Calldata = append(stone.Calldata, value)
		case TagPointer:
			if stone.Pointer != nil {
				return ErrMalformedPayload
			}

			pointer := uint32(value.Uint64())
			stone.Pointer = &pointer
		default:
			// unknown even tags are ignored for forward compatibility.
		}
	}

	return nil
}

// preparePayload validates the envelope and collects pushed data.
func preparePayload(script []byte) ([]byte, error) {
	if !IsPossibleProtostone(script) {
		return nil, ErrMalformedPayload
	}

	payload := make([]byte, 0, len(script)-3)
	buffer := bytes.NewReader(script[2:])
	for buffer.Len() > 0 {
		op, err := buffer.ReadByte()
		if err != nil {
			return nil, err
		}

		if op < txscript.OP_DATA_1 || op > txscript.OP_DATA_75 {
			return nil, ErrMalformedPayload
		}

		data := make([]byte, op)
		if _, err = buffer.Read(data); err != nil {
			return nil, err
		}

		payload = append(payload, data...)
	}

	return payload, nil
}

// payloadIntoIntSequence decodes LEB128 payload into an integer sequence.
func payloadIntoIntSequence(payload []byte) ([]*big.Int, error) {
	sequence := make([]*big.Int, 0)
	data := bytes.NewReader(payload)
	for data.Len() > 0 {
		num, err := leb128.DecodeUnsigned(data)
		if err != nil {
			return nil, err
		}

		sequence = append(sequence, num)
	}

	return sequence, nil
}

// Equal reports deep equality of two protostones, edict order included.
func (stone *Protostone) Equal(other *Protostone) bool {
	if stone == nil || other == nil {
		return stone == other
	}

	intSeqEqual := func(a, b []*big.Int) bool {
		return slices.EqualFunc(a, b, func(x, y *big.Int) bool { return x.Cmp(y) == 0 })
	}

	switch {
	case !intSeqEqual(stone.Calldata, other.Calldata):
		return false
	case (stone.Pointer == nil) != (other.Pointer == nil):
		return false
	case stone.Pointer != nil && *stone.Pointer != *other.Pointer:
		return false
	}

	return slices.EqualFunc(stone.Edicts, other.Edicts, func(a, b Edict) bool {
		return a.ID == b.ID && a.Output == b.Output && a.Amount.Cmp(b.Amount) == 0
	})
}
