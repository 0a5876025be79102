package memory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/custodia-labs/mahuta/internal/core/domain"
)

// Snapshot file layout: a fixed header followed by an lz4 block holding
// the msgpack encoded indexes. Incompressible payloads are stored raw.
const (
	snapshotMagic   = "MHIX"
	snapshotVersion = 1

	flagCompressed = 1 << 0
)

type snapshotHeader struct {
	Magic   [4]byte
	Version uint8
	Flags   uint8
	_       [2]byte
	RawSize uint32
}

type snapshotData struct {
	Indexes []snapshotIndex `msgpack:"indexes"`
}

type snapshotIndex struct {
	Name    string        `msgpack:"name"`
	Mapping []byte        `msgpack:"mapping,omitempty"`
	Docs    []snapshotDoc `msgpack:"docs"`
}

type snapshotDoc struct {
	ID          string                   `msgpack:"id"`
	ContentID   string                   `msgpack:"cid"`
	ContentType string                   `msgpack:"ctype,omitempty"`
	Content     []byte                   `msgpack:"content,omitempty"`
	Pinned      bool                     `msgpack:"pinned"`
	Fields      map[string]snapshotValue `msgpack:"fields,omitempty"`
}

// snapshotValue keeps the value kind so dates survive a round trip.
type snapshotValue struct {
	Kind   domain.ValueKind `msgpack:"k"`
	Str    string           `msgpack:"s,omitempty"`
	Num    float64          `msgpack:"n,omitempty"`
	Bool   bool             `msgpack:"b,omitempty"`
	Millis int64            `msgpack:"t,omitempty"`
	Items  []snapshotValue  `msgpack:"a,omitempty"`
}

func encodeValue(v domain.Value) snapshotValue {
	out := snapshotValue{Kind: v.Kind()}
	switch v.Kind() {
	case domain.KindString:
		out.Str, _ = v.Str()
	case domain.KindNumber:
		out.Num, _ = v.Num()
	case domain.KindBool:
		out.Bool, _ = v.Boolean()
	case domain.KindDate:
		t, _ := v.Time()
		out.Millis = t.UnixMilli()
	case domain.KindArray:
		for _, item := range v.Items() {
			out.Items = append(out.Items, encodeValue(item))
		}
	}
	return out
}

func decodeValue(s snapshotValue) domain.Value {
	switch s.Kind {
	case domain.KindString:
		return domain.String(s.Str)
	case domain.KindNumber:
		return domain.Number(s.Num)
	case domain.KindBool:
		return domain.Bool(s.Bool)
	case domain.KindDate:
		return domain.DateMillis(s.Millis)
	case domain.KindArray:
		items := make([]domain.Value, len(s.Items))
		for i, item := range s.Items {
			items[i] = decodeValue(item)
		}
		return domain.Array(items...)
	default:
		return domain.Null()
	}
}

// Snapshot writes every index to path, replacing the file atomically.
func (x *Index) Snapshot(path string) error {
	x.mu.RLock()
	data := x.export()
	x.mu.RUnlock()

	raw, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	header := snapshotHeader{Version: snapshotVersion, RawSize: uint32(len(raw))}
	copy(header.Magic[:], snapshotMagic)

	body := make([]byte, lz4.CompressBlockBound(len(raw)))
	var hashTable [1 << 16]int
	n, err := lz4.CompressBlock(raw, body, hashTable[:])
	if err != nil {
		return fmt.Errorf("compress snapshot: %w", err)
	}
	if n > 0 && n < len(raw) {
		body = body[:n]
		header.Flags |= flagCompressed
	} else {
		body = raw
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}
	buf.Write(body)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (x *Index) export() snapshotData {
	names := make([]string, 0, len(x.collections))
	for name := range x.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	var data snapshotData
	for _, name := range names {
		c := x.collections[name]
		si := snapshotIndex{Name: c.name, Mapping: c.mapping}
		it := c.live.Iterator()
		for it.HasNext() {
			doc := c.bySeq[it.Next()].doc
			sd := snapshotDoc{
				ID:          doc.DocumentID,
				ContentID:   doc.ContentID,
				ContentType: doc.ContentType,
				Content:     doc.Content,
				Pinned:      doc.Pinned,
			}
			if len(doc.Fields) > 0 {
				sd.Fields = make(map[string]snapshotValue, len(doc.Fields))
				for k, v := range doc.Fields {
					sd.Fields[k] = encodeValue(v)
				}
			}
			si.Docs = append(si.Docs, sd)
		}
		data.Indexes = append(data.Indexes, si)
	}
	return data
}

// load restores a snapshot. A missing file is not an error.
func (x *Index) load(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var header snapshotHeader
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}
	if string(header.Magic[:]) != snapshotMagic {
		return fmt.Errorf("invalid snapshot format: magic %q", string(header.Magic[:]))
	}
	if header.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d", header.Version)
	}

	body, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	raw := body
	if header.Flags&flagCompressed != 0 {
		raw = make([]byte, header.RawSize)
		n, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return fmt.Errorf("decompress snapshot: %w", err)
		}
		raw = raw[:n]
	}

	var data snapshotData
	if err := msgpack.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, si := range data.Indexes {
		c := newCollection(si.Name, si.Mapping)
		for _, sd := range si.Docs {
			doc := domain.Metadata{
				IndexName:   si.Name,
				DocumentID:  sd.ID,
				ContentID:   sd.ContentID,
				ContentType: sd.ContentType,
				Content:     sd.Content,
				Pinned:      sd.Pinned,
			}
			if len(sd.Fields) > 0 {
				doc.Fields = make(domain.Fields, len(sd.Fields))
				for k, v := range sd.Fields {
					doc.Fields[k] = decodeValue(v)
				}
			}
			c.put(doc)
		}
		x.collections[si.Name] = c
	}
	return nil
}
