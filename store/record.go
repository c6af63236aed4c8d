package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zhangxinngang/murmur"
	kv_capacity "kv-capacity"
	"kv-capacity/codec"
	"kv-capacity/piece"
)

// Record layout, one per flushed piece, little-endian:
//
//	Header (40 bytes):
//	  - Magic (4): "KVCP"
//	  - Version (2): 1
//	  - Flags (1): bit 0 set when the body is zstd-compressed
//	  - CodecID (1): codec used for keys and values
//	  - Seq (8): piece sequence number
//	  - Timestamp (8): flush time, unix nanoseconds
//	  - Count (4): number of entries
//	  - Fingerprint (4): XOR of murmur3 over every encoded key
//	  - BodySize (4): stored body length
//	  - CRC (4): CRC32 of the header, with this field zeroed, followed by
//	    the stored body
//	Body:
//	  - Count x (uvarint keyLen, key, uvarint valueLen, value)
//
// There is no file header or record count; physical EOF ends the log.
const (
	recordMagic      = "KVCP"
	recordVersion    = 1
	recordHeaderSize = 40

	flagZstd uint8 = 1 << 0
)

type recordHeader struct {
	Magic       [4]byte
	Version     uint16
	Flags       uint8
	CodecID     uint8
	Seq         uint64
	Timestamp   int64
	Count       uint32
	Fingerprint uint32
	BodySize    uint32
	CRC         uint32
}

func (h *recordHeader) MarshalBinary() ([]byte, error) {
	writeBuffer := bytes.NewBuffer(make([]byte, 0, recordHeaderSize))

	write := func(data any) func() error {
		return func() error {
			return binary.Write(writeBuffer, binary.LittleEndian, data)
		}
	}

	writeQueue := []func() error{
		write(h.Magic),
		write(h.Version),
		write(h.Flags),
		write(h.CodecID),
		write(h.Seq),
		write(h.Timestamp),
		write(h.Count),
		write(h.Fingerprint),
		write(h.BodySize),
		write(h.CRC),
	}

	for _, op := range writeQueue {
		err := op()
		if err != nil {
			return nil, err
		}
	}

	return writeBuffer.Bytes(), nil
}

func (h *recordHeader) UnmarshalBinary(data []byte) error {
	if len(data) != recordHeaderSize {
		return fmt.Errorf("%w: header is %d bytes, expected %d", kv_capacity.ErrCorruptRecord, len(data), recordHeaderSize)
	}
	readBuffer := bytes.NewReader(data)

	read := func(field any) func() error {
		return func() error {
			return binary.Read(readBuffer, binary.LittleEndian, field)
		}
	}

	readQueue := []func() error{
		read(&h.Magic),
		read(&h.Version),
		read(&h.Flags),
		read(&h.CodecID),
		read(&h.Seq),
		read(&h.Timestamp),
		read(&h.Count),
		read(&h.Fingerprint),
		read(&h.BodySize),
		read(&h.CRC),
	}

	for _, op := range readQueue {
		err := op()
		if err != nil {
			return fmt.Errorf("%w: %v", kv_capacity.ErrCorruptRecord, err)
		}
	}

	if string(h.Magic[:]) != recordMagic {
		return fmt.Errorf("%w: invalid magic %q", kv_capacity.ErrCorruptRecord, h.Magic)
	}
	if h.Version != recordVersion {
		return fmt.Errorf("%w: unsupported version %d", kv_capacity.ErrCorruptRecord, h.Version)
	}
	return nil
}

type pieceRecord struct {
	header recordHeader
	body   []byte
}

// newPieceRecord encodes p with c and, when encoder is non-nil, compresses
// the body.
func newPieceRecord[K comparable, V any](p *piece.Piece[K, V], c codec.Codec, encoder *zstd.Encoder, now time.Time) (*pieceRecord, error) {
	var (
		body        []byte
		fingerprint uint32
		encodeErr   error
	)
	p.Range(func(key K, value V) bool {
		keyBytes, err := c.Marshal(key)
		if err != nil {
			encodeErr = fmt.Errorf("failed to encode key: %w", err)
			return false
		}
		valueBytes, err := c.Marshal(value)
		if err != nil {
			encodeErr = fmt.Errorf("failed to encode value: %w", err)
			return false
		}
		body = binary.AppendUvarint(body, uint64(len(keyBytes)))
		body = append(body, keyBytes...)
		body = binary.AppendUvarint(body, uint64(len(valueBytes)))
		body = append(body, valueBytes...)
		fingerprint ^= murmur.Murmur3(keyBytes)
		return true
	})
	if encodeErr != nil {
		return nil, encodeErr
	}

	var flags uint8
	if encoder != nil {
		body = encoder.EncodeAll(body, nil)
		flags |= flagZstd
	}

	record := &pieceRecord{
		header: recordHeader{
			Version:     recordVersion,
			Flags:       flags,
			CodecID:     c.ID(),
			Seq:         p.Seq,
			Timestamp:   now.UnixNano(),
			Count:       uint32(p.Len()),
			Fingerprint: fingerprint,
			BodySize:    uint32(len(body)),
		},
		body: body,
	}
	copy(record.header.Magic[:], recordMagic)

	crc, err := record.checksum()
	if err != nil {
		return nil, err
	}
	record.header.CRC = crc
	return record, nil
}

// checksum covers every header field except CRC, plus the stored body.
func (r *pieceRecord) checksum() (uint32, error) {
	header := r.header
	header.CRC = 0
	headerBytes, err := header.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return crc32.Update(crc32.ChecksumIEEE(headerBytes), crc32.IEEETable, r.body), nil
}

func (r *pieceRecord) MarshalBinary() ([]byte, error) {
	header, err := r.header.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(header, r.body...), nil
}

func (r *pieceRecord) VerifyChecksum() error {
	crc, err := r.checksum()
	if err != nil {
		return err
	}
	if crc != r.header.CRC {
		return fmt.Errorf("%w: checksum mismatch in piece %d", kv_capacity.ErrCorruptRecord, r.header.Seq)
	}
	return nil
}

// readPieceRecord reads the next record from lr. It returns io.EOF only when
// lr is exhausted exactly at a record boundary.
func readPieceRecord(lr *io.LimitedReader) (*pieceRecord, error) {
	headerBytes := make([]byte, recordHeaderSize)
	bytesRead, err := io.ReadFull(lr, headerBytes)
	switch {
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: truncated header, read %d of %d bytes", kv_capacity.ErrCorruptRecord, bytesRead, recordHeaderSize)
	case err != nil:
		return nil, err
	}

	record := &pieceRecord{}
	err = record.header.UnmarshalBinary(headerBytes)
	if err != nil {
		return nil, err
	}

	if int64(record.header.BodySize) > lr.N {
		return nil, fmt.Errorf("%w: truncated body in piece %d, need %d bytes, %d remain",
			kv_capacity.ErrCorruptRecord, record.header.Seq, record.header.BodySize, lr.N)
	}
	record.body = make([]byte, record.header.BodySize)
	bytesRead, err = io.ReadFull(lr, record.body)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: truncated body in piece %d, read %d of %d bytes",
			kv_capacity.ErrCorruptRecord, record.header.Seq, bytesRead, record.header.BodySize)
	}
	if err != nil {
		return nil, err
	}

	err = record.VerifyChecksum()
	if err != nil {
		return nil, err
	}
	return record, nil
}

// decodePiece rebuilds the piece held by r. decoder may be nil when the body
// is not compressed.
func decodePiece[K comparable, V any](r *pieceRecord, decoder *zstd.Decoder) (*piece.Piece[K, V], error) {
	c, ok := codec.ByID(r.header.CodecID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %d in piece %d", kv_capacity.ErrCorruptRecord, r.header.CodecID, r.header.Seq)
	}

	body := r.body
	if r.header.Flags&flagZstd != 0 {
		if decoder == nil {
			return nil, errors.New("compressed piece without a decoder")
		}
		var err error
		body, err = decoder.DecodeAll(r.body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decompress piece %d: %v", kv_capacity.ErrCorruptRecord, r.header.Seq, err)
		}
	}

	// Every entry carries at least its two length prefixes.
	if uint64(r.header.Count)*2 > uint64(len(body)) {
		return nil, fmt.Errorf("%w: piece %d claims %d entries in %d bytes",
			kv_capacity.ErrCorruptRecord, r.header.Seq, r.header.Count, len(body))
	}

	readBuffer := bytes.NewReader(body)
	readField := func() ([]byte, error) {
		size, err := binary.ReadUvarint(readBuffer)
		if err != nil {
			return nil, err
		}
		if size > uint64(readBuffer.Len()) {
			return nil, fmt.Errorf("field of %d bytes exceeds remaining %d", size, readBuffer.Len())
		}
		field := make([]byte, size)
		_, err = io.ReadFull(readBuffer, field)
		return field, err
	}

	entries := make(map[K]V, r.header.Count)
	var fingerprint uint32
	for i := uint32(0); i < r.header.Count; i++ {
		keyBytes, err := readField()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d of piece %d: %v", kv_capacity.ErrCorruptRecord, i, r.header.Seq, err)
		}
		valueBytes, err := readField()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d of piece %d: %v", kv_capacity.ErrCorruptRecord, i, r.header.Seq, err)
		}

		var key K
		var value V
		if err := c.Unmarshal(keyBytes, &key); err != nil {
			return nil, fmt.Errorf("%w: key %d of piece %d: %v", kv_capacity.ErrCorruptRecord, i, r.header.Seq, err)
		}
		if err := c.Unmarshal(valueBytes, &value); err != nil {
			return nil, fmt.Errorf("%w: value %d of piece %d: %v", kv_capacity.ErrCorruptRecord, i, r.header.Seq, err)
		}
		entries[key] = value
		fingerprint ^= murmur.Murmur3(keyBytes)
	}

	if readBuffer.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in piece %d", kv_capacity.ErrCorruptRecord, readBuffer.Len(), r.header.Seq)
	}
	if fingerprint != r.header.Fingerprint || uint32(len(entries)) != r.header.Count {
		return nil, fmt.Errorf("%w: key set of piece %d does not match its fingerprint", kv_capacity.ErrCorruptRecord, r.header.Seq)
	}

	p := piece.New(r.header.Seq, entries)
	p.FlushedAt = time.Unix(0, r.header.Timestamp)
	return p, nil
}
