package keyValStore

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	publicKeyPrefix = "publickey:"
	notePrefix      = "note:"

	publicKeyCounter = "counter:publickey"
	noteCounter      = "counter:note"
)

// Field numbers of the stored values.
const (
	fieldModulus    protowire.Number = 1
	fieldExponent   protowire.Number = 2
	fieldCiphertext protowire.Number = 1
)

func recordKey(prefix string, id int64) []byte {
	key := make([]byte, 0, len(prefix)+8)
	key = append(key, prefix...)
	return binary.BigEndian.AppendUint64(key, uint64(id))
}

func marshalPublicKey(n, e []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldModulus, protowire.BytesType)
	b = protowire.AppendBytes(b, n)
	b = protowire.AppendTag(b, fieldExponent, protowire.BytesType)
	b = protowire.AppendBytes(b, e)
	return b
}

func unmarshalPublicKey(b []byte) (n, e []byte, err error) {
	err = consumeFields(b, func(num protowire.Number, v []byte) {
		switch num {
		case fieldModulus:
			n = v
		case fieldExponent:
			e = v
		}
	})
	return n, e, err
}

func marshalNote(ciphertext []byte) []byte {
	b := protowire.AppendTag(nil, fieldCiphertext, protowire.BytesType)
	return protowire.AppendBytes(b, ciphertext)
}

func unmarshalNote(b []byte) (ciphertext []byte, err error) {
	err = consumeFields(b, func(num protowire.Number, v []byte) {
		if num == fieldCiphertext {
			ciphertext = v
		}
	})
	return ciphertext, err
}

// consumeFields walks b and hands every length-delimited field to fn.
// Fields of other wire types are skipped.
func consumeFields(b []byte, fn func(protowire.Number, []byte)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("malformed record tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("malformed record field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return fmt.Errorf("malformed record field %d: %w", num, protowire.ParseError(n))
		}
		fn(num, append([]byte{}, v...))
		b = b[n:]
	}
	return nil
}
