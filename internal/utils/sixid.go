package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// SixIDHookFunc defines the signature for the NewSixID test hook.
// It returns a SixID and a boolean indicating whether to override the default generation.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook lets tests force the next generated ids.
var NewSixIDHook SixIDHookFunc

// sixIDSubtype is the BSON binary subtype every SixID is stored with.
const sixIDSubtype byte = 0x80

// SixID is a 6-byte entity id (listings, offers, messages, notifications, wishlist entries).
// It is stored as BSON BinData with subtype 0x80 and rendered as 10 Crockford Base32 characters.
type SixID [6]byte

// NewSixID creates a new random SixID.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}

	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		return SixID{}
	}
	return id
}

// ParseSixID parses the Crockford Base32 form of a SixID.
func ParseSixID(s string) (SixID, error) {
	if s == "" {
		return SixID{}, errors.New("empty SixID")
	}

	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	if len(s) != 10 {
		return SixID{}, errors.New("invalid SixID: string length must be 10")
	}

	var bits uint64
	var offset uint
	var id SixID
	byteIndex := 0

	for i := 0; i < len(s); i++ {
		val, ok := crockfordDecodeMap[s[i]]
		if !ok {
			return SixID{}, fmt.Errorf("invalid character %q in SixID", s[i])
		}

		bits |= uint64(val) << offset
		offset += 5

		for offset >= 8 && byteIndex < len(id) {
			id[byteIndex] = byte(bits & 0xFF)
			byteIndex++
			bits >>= 8
			offset -= 8
		}
	}

	if byteIndex != len(id) {
		return SixID{}, errors.New("invalid SixID: could not decode 6 bytes")
	}
	return id, nil
}

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordDecodeMap map[byte]byte

func init() {
	crockfordDecodeMap = make(map[byte]byte, 40)
	for i := range crockfordAlphabet {
		crockfordDecodeMap[crockfordAlphabet[i]] = byte(i)
	}
	lower := strings.ToLower(crockfordAlphabet)
	for i := 10; i < len(lower); i++ {
		crockfordDecodeMap[lower[i]] = byte(i)
	}
	// Commonly confused characters
	crockfordDecodeMap['o'] = crockfordDecodeMap['0']
	crockfordDecodeMap['O'] = crockfordDecodeMap['0']
	crockfordDecodeMap['i'] = crockfordDecodeMap['1']
	crockfordDecodeMap['I'] = crockfordDecodeMap['1']
	crockfordDecodeMap['l'] = crockfordDecodeMap['1']
	crockfordDecodeMap['L'] = crockfordDecodeMap['1']
}

// String returns the Crockford Base32 representation.
func (u SixID) String() string {
	result := make([]byte, 0, 10)
	var bits, offset uint

	for i := 0; i < len(u); i++ {
		bits |= uint(u[i]) << offset
		offset += 8
		for offset >= 5 {
			result = append(result, crockfordAlphabet[bits&0x1F])
			bits >>= 5
			offset -= 5
		}
	}
	if offset > 0 {
		result = append(result, crockfordAlphabet[bits&0x1F])
	}
	return string(result)
}

// IsZero reports whether the id was never assigned. The mongo driver uses it for omitempty.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

// MarshalBSONValue stores the id as BinData subtype 0x80.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bsontype.Binary, bsoncore.AppendBinary(nil, sixIDSubtype, u[:]), nil
}

// UnmarshalBSONValue accepts BinData of length 6 (any subtype) and null.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*u = SixID{}
		return nil
	case bsontype.Binary:
		_, bin, _, ok := bsoncore.ReadBinary(data)
		if !ok || len(bin) != len(u) {
			return errors.New("invalid BSON binary data for SixID")
		}
		copy(u[:], bin)
		return nil
	default:
		return fmt.Errorf("invalid BSON type %s for SixID", t)
	}
}

// MarshalJSON renders the id as its Crockford string.
func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON parses a Crockford string.
func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSixID(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
