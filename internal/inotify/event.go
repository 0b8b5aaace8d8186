package inotify

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/rprtr258/fun"

	"github.com/rprtr258/procwatch/internal/errors"
)

const (
	// HeaderSize is size of fixed part of kernel event record:
	// wd, mask, cookie and name length, four bytes each.
	HeaderSize = 16
	// MaxNameLen bounds declared name length. Kernel pads names of at most
	// NAME_MAX bytes, anything above is garbage.
	MaxNameLen = 4096
	// ReadBufferSize fits 16 records with longest possible names.
	ReadBufferSize = 16 * (HeaderSize + _nameMax + 1)

	_nameMax = 255

	// _namePadding is alignment kernel pads names to.
	_namePadding = HeaderSize
)

var ErrMalformedRecord = errors.New("malformed inotify record")

// Event is single decoded inotify record.
type Event struct {
	WatchID int32
	Mask    EventKind
	// Cookie pairs MovedFrom and MovedTo records of one rename, zero otherwise.
	Cookie uint32
	// Name of entry inside watched directory, absent for events on
	// directory itself.
	Name fun.Option[string]
}

func (e Event) String() string {
	name, _ := e.Name.Unpack()
	return fmt.Sprintf("wd=%d mask=%s cookie=%d name=%q", e.WatchID, e.Mask, e.Cookie, name)
}

// DecodeRecords decodes all complete records at the beginning of buf, in order.
// It returns number of bytes consumed, record which does not fit in buf is left
// for caller to complete. Declared name length is trusted as is: name is cut
// at first NUL inside declared span and never looked for outside of it.
func DecodeRecords(buf []byte) ([]Event, int, error) {
	events := []Event{}
	offset := 0
	for len(buf)-offset >= HeaderSize {
		header := buf[offset : offset+HeaderSize]
		nameLen := binary.LittleEndian.Uint32(header[12:16])
		if nameLen > MaxNameLen {
			return events, offset, errors.Wrapf(ErrMalformedRecord, "offset=%d name length=%d", offset, nameLen)
		}

		end := offset + HeaderSize + int(nameLen)
		if end > len(buf) {
			// name is cut off
			break
		}

		event := Event{
			WatchID: int32(binary.LittleEndian.Uint32(header[0:4])), //nolint:gosec // wd is signed on wire
			Mask:    EventKind(binary.LittleEndian.Uint32(header[4:8])),
			Cookie:  binary.LittleEndian.Uint32(header[8:12]),
			Name:    fun.Invalid[string](),
		}
		if nameLen > 0 {
			name := buf[offset+HeaderSize : end]
			if i := bytes.IndexByte(name, 0); i != -1 {
				name = name[:i]
			}
			event.Name = fun.Valid(string(name))
		}

		events = append(events, event)
		offset = end
	}
	return events, offset, nil
}

// Decoder decodes stream of reads, carrying partial trailing record of one
// read over to the next one. Not safe for concurrent use.
type Decoder struct {
	pending []byte
}

// Decode decodes chunk prefixed with bytes left from previous call.
// On malformed record carried bytes are dropped, so that next chunk starts
// decoding from scratch.
func (d *Decoder) Decode(chunk []byte) ([]Event, error) {
	data := chunk
	if len(d.pending) > 0 {
		data = make([]byte, 0, len(d.pending)+len(chunk))
		data = append(data, d.pending...)
		data = append(data, chunk...)
	}

	events, consumed, err := DecodeRecords(data)
	if err != nil {
		d.pending = nil
		return events, err
	}

	if rest := data[consumed:]; len(rest) > 0 {
		// copy, chunk is reused by reader
		d.pending = append(make([]byte, 0, len(rest)), rest...)
	} else {
		d.pending = nil
	}
	return events, nil
}

// Pending returns number of bytes waiting for the rest of their record.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// EncodeRecord encodes event the way kernel does, with name padded by NULs to
// record alignment.
func EncodeRecord(e Event) []byte {
	nameLen := 0
	name, hasName := e.Name.Unpack()
	if hasName {
		nameLen = (len(name)/_namePadding + 1) * _namePadding
	}

	buf := make([]byte, HeaderSize+nameLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e.WatchID)) //nolint:gosec // wd is signed on wire
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.Mask))
	binary.LittleEndian.PutUint32(buf[8:12], e.Cookie)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(nameLen)) //nolint:gosec // bounded by padding
	copy(buf[HeaderSize:], name)
	return buf
}
