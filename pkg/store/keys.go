package store

import (
	"bytes"
	"encoding/binary"
)

// Key layout:
//
//	element: [0x01 | project | 0x00 | seq(8)]  -> s2(json(element))
//	meta:    [0xFF | project]                   -> json(Snapshot)
//
// seq is big endian so a prefix scan yields elements in declaration order.
const (
	ElementPrefix byte = 0x01
	MetaPrefix    byte = 0xFF

	seqSize = 8
)

func projectPrefix(project string) []byte {
	key := make([]byte, 0, 2+len(project))
	key = append(key, ElementPrefix)
	key = append(key, project...)
	return append(key, 0x00)
}

func encodeElementKey(project string, seq uint64) []byte {
	key := projectPrefix(project)
	var buf [seqSize]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

// decodeElementKey returns the sequence number of an element key.
func decodeElementKey(key []byte) (project string, seq uint64, ok bool) {
	if len(key) < 2+seqSize || key[0] != ElementPrefix {
		return "", 0, false
	}
	body := key[1 : len(key)-seqSize]
	if len(body) == 0 || body[len(body)-1] != 0x00 {
		return "", 0, false
	}
	return string(body[:len(body)-1]), binary.BigEndian.Uint64(key[len(key)-seqSize:]), true
}

func encodeMetaKey(project string) []byte {
	return append([]byte{MetaPrefix}, project...)
}

func validProject(project string) bool {
	return project != "" && !bytes.ContainsRune([]byte(project), 0)
}
