package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// CurrentSchemaVersion is the first byte of every encoded session.
const CurrentSchemaVersion = 1

// Encode serialises s without its id; the id is the storage key.
//
// Layout: version | uid len (u8) | uid | ip len (u8) | ip |
// user agent len (u16) | user agent | created ms (i64) | last activity ms (i64).
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(1 + 1 + len(s.UserID) + 1 + len(s.Metadata.IP) + 2 + len(s.Metadata.UserAgent) + 16)

	buf.WriteByte(CurrentSchemaVersion)

	if len(s.UserID) == 0 || len(s.UserID) > 255 {
		return nil, errors.New("userID length out of range")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	if len(s.Metadata.IP) > 255 {
		return nil, errors.New("ip too long")
	}
	buf.WriteByte(byte(len(s.Metadata.IP)))
	buf.WriteString(s.Metadata.IP)

	if len(s.Metadata.UserAgent) > 0xffff {
		return nil, errors.New("user agent too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.Metadata.UserAgent))); err != nil {
		return nil, err
	}
	buf.WriteString(s.Metadata.UserAgent)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.LastActivityAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a value written by Encode. The returned session has no ID.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	s := &Session{}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if userLen == 0 {
		return nil, errors.New("empty session user id")
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	s.UserID = string(userID)

	ipLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	ip := make([]byte, ipLen)
	if _, err := io.ReadFull(reader, ip); err != nil {
		return nil, err
	}
	s.Metadata.IP = string(ip)

	var uaLen uint16
	if err := binary.Read(reader, binary.BigEndian, &uaLen); err != nil {
		return nil, err
	}
	ua := make([]byte, uaLen)
	if _, err := io.ReadFull(reader, ua); err != nil {
		return nil, err
	}
	s.Metadata.UserAgent = string(ua)

	var createdMS, lastMS int64
	if err := binary.Read(reader, binary.BigEndian, &createdMS); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &lastMS); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session value")
	}
	s.CreatedAt = time.UnixMilli(createdMS)
	s.LastActivityAt = time.UnixMilli(lastMS)

	return s, nil
}
