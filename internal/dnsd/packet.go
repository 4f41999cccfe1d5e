package dnsd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
)

// RFC1035 message constants, restricted to the single-answer shape the
// captive portal needs.
const (
	// HeaderLen is the fixed DNS header size; anything shorter is not a query.
	HeaderLen = 12

	// MaxQuestionLen bounds the question section (name + type + class).
	// Longer questions are dropped rather than answered with a truncated
	// packet.
	MaxQuestionLen = 64

	// AnswerTTL keeps clients from caching the captive answer for long.
	AnswerTTL = 10

	// responseFlags: QR=1 (response), RD echoed, RA=1 (recursion available).
	responseFlags = 0x8180

	typeA   = 0x0001
	classIN = 0x0001
)

var (
	// ErrTooShort marks a datagram smaller than the DNS header.
	ErrTooShort = errors.New("datagram shorter than DNS header")
	// ErrQuestionTooLong marks a question section over MaxQuestionLen.
	ErrQuestionTooLong = errors.New("question section too long")
	// ErrTruncatedQuestion marks a name walk running past the datagram.
	ErrTruncatedQuestion = errors.New("question section truncated")
)

// Query is one parsed DNS question. The raw question bytes are retained so
// the response can echo them verbatim.
type Query struct {
	ID       uint16
	Domain   string // dot-joined name, for logging only
	question []byte // name + type + class, copied from the request
}

// ParseQuery validates and extracts the single question from a datagram.
// Malformed queries return an error and are never answered.
func ParseQuery(datagram []byte) (*Query, error) {
	if len(datagram) < HeaderLen {
		return nil, ErrTooShort
	}

	// Walk the label-length-prefixed name. Every step is bounds-checked:
	// the lengths are attacker-controlled.
	pos := HeaderLen
	var labels []string
	for {
		if pos >= len(datagram) {
			return nil, ErrTruncatedQuestion
		}
		labelLen := int(datagram[pos])
		if labelLen == 0 {
			pos++
			break
		}
		pos++
		if pos+labelLen > len(datagram) {
			return nil, ErrTruncatedQuestion
		}
		labels = append(labels, string(datagram[pos:pos+labelLen]))
		pos += labelLen
	}

	// Type and class follow the name terminator.
	if pos+4 > len(datagram) {
		return nil, ErrTruncatedQuestion
	}
	pos += 4

	questionLen := pos - HeaderLen
	if questionLen > MaxQuestionLen {
		return nil, ErrQuestionTooLong
	}

	question := make([]byte, questionLen)
	copy(question, datagram[HeaderLen:pos])

	return &Query{
		ID:       binary.BigEndian.Uint16(datagram[0:2]),
		Domain:   strings.Join(labels, "."),
		question: question,
	}, nil
}

// BuildResponse crafts the reply: the request id, a fixed response header,
// the question echoed verbatim, and one A record pointing at addr.
func (q *Query) BuildResponse(addr net.IP) ([]byte, error) {
	ip4 := addr.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("answer address %v is not IPv4", addr)
	}

	resp := make([]byte, 0, HeaderLen+len(q.question)+16)

	var header [HeaderLen]byte
	binary.BigEndian.PutUint16(header[0:2], q.ID)
	binary.BigEndian.PutUint16(header[2:4], responseFlags)
	binary.BigEndian.PutUint16(header[4:6], 1) // questions
	binary.BigEndian.PutUint16(header[6:8], 1) // answers
	// authority and additional counts stay zero
	resp = append(resp, header[:]...)

	resp = append(resp, q.question...)

	// Answer: compression pointer back to the question name at offset 12.
	resp = append(resp, 0xC0, 0x0C)
	var rr [10]byte
	binary.BigEndian.PutUint16(rr[0:2], typeA)
	binary.BigEndian.PutUint16(rr[2:4], classIN)
	binary.BigEndian.PutUint32(rr[4:8], AnswerTTL)
	binary.BigEndian.PutUint16(rr[8:10], 4) // rdlength
	resp = append(resp, rr[:]...)
	resp = append(resp, ip4...)

	return resp, nil
}
