package wal

import "errors"

var (
	errShortRecord      = errors.New("wal: record truncated")
	errBadMagic         = errors.New("wal: bad magic, not a record boundary")
	errChecksumMismatch = errors.New("wal: crc32 mismatch")
)
