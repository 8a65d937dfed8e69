package store

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/loopfit/compress"
	"github.com/arloliu/loopfit/endian"
	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/internal/hash"
	"github.com/arloliu/loopfit/internal/options"
)

type manifest struct {
	PageRows int          `yaml:"page_rows"`
	Groups   []groupEntry `yaml:"groups"`
	Tables   []tableEntry `yaml:"tables"`
}

type groupEntry struct {
	Path  string            `yaml:"path"`
	Attrs []attrEntry       `yaml:"attrs,omitempty"`
	Links map[string]string `yaml:"links,omitempty"`
}

type tableEntry struct {
	ID     uint64            `yaml:"id"`
	Path   string            `yaml:"path"`
	Layout string            `yaml:"layout"`
	Fields []string          `yaml:"fields"`
	Rows   int               `yaml:"rows"`
	Cols   int               `yaml:"cols"`
	Attrs  []attrEntry       `yaml:"attrs,omitempty"`
	Links  map[string]string `yaml:"links,omitempty"`
	Pages  []pageEntry       `yaml:"pages,omitempty"`
}

type pageEntry struct {
	RowStart int    `yaml:"row_start"`
	RowEnd   int    `yaml:"row_end"`
	Offset   uint64 `yaml:"offset"`
	Length   uint64 `yaml:"length"`
	Checksum uint64 `yaml:"checksum"`
}

// attrEntry keeps the attribute kind so numbers and strings survive the YAML round trip.
type attrEntry struct {
	Key    string   `yaml:"key"`
	Kind   string   `yaml:"kind"`
	Text   string   `yaml:"text,omitempty"`
	Number float64  `yaml:"number,omitempty"`
	List   []string `yaml:"list,omitempty"`
}

const (
	attrKindString  = "string"
	attrKindNumber  = "number"
	attrKindStrings = "strings"
)

func encodeAttrs(attrs map[string]any) []attrEntry {
	out := make([]attrEntry, 0, len(attrs))
	for _, key := range slices.Sorted(maps.Keys(attrs)) {
		switch v := attrs[key].(type) {
		case string:
			out = append(out, attrEntry{Key: key, Kind: attrKindString, Text: v})
		case float64:
			out = append(out, attrEntry{Key: key, Kind: attrKindNumber, Number: v})
		case []string:
			out = append(out, attrEntry{Key: key, Kind: attrKindStrings, List: v})
		}
	}

	return out
}

func decodeAttrs(entries []attrEntry) (map[string]any, error) {
	attrs := make(map[string]any, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case attrKindString:
			attrs[e.Key] = e.Text
		case attrKindNumber:
			attrs[e.Key] = e.Number
		case attrKindStrings:
			attrs[e.Key] = append([]string{}, e.List...)
		default:
			return nil, fmt.Errorf("%w: attribute %s has unknown kind %q", errs.ErrInvalidHeader, e.Key, e.Kind)
		}
	}

	return attrs, nil
}

func linksOrNil(links map[string]string) map[string]string {
	if len(links) == 0 {
		return nil
	}

	return maps.Clone(links)
}

// Save writes the store to w.
func (s *Store) Save(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codec, err := compress.CreateCodec(s.compression, "page")
	if err != nil {
		return err
	}

	header := NewHeader(s.compression)
	header.SetBigEndian(s.bigEndian)
	engine := header.Engine()

	var body bytes.Buffer
	m := manifest{PageRows: s.pageRows}

	for _, p := range slices.Sorted(maps.Keys(s.groups)) {
		g := s.groups[p]
		m.Groups = append(m.Groups, groupEntry{Path: p, Attrs: encodeAttrs(g.attrs), Links: linksOrNil(g.links)})
	}

	var raw []byte
	for _, p := range slices.Sorted(maps.Keys(s.tables)) {
		t := s.tables[p]
		entry := tableEntry{
			ID:     t.id,
			Path:   p,
			Layout: t.layout.Name,
			Fields: t.layout.Fields,
			Rows:   t.rows,
			Cols:   t.cols,
			Attrs:  encodeAttrs(t.attrs),
			Links:  linksOrNil(t.links),
		}

		rowWidth := t.cols * t.layout.Width()
		for start := 0; start < t.rows; start += s.pageRows {
			end := min(start+s.pageRows, t.rows)
			raw = endian.AppendFloat32s(engine, raw[:0], t.data[start*rowWidth:end*rowWidth])

			page, err := codec.Compress(raw)
			if err != nil {
				return fmt.Errorf("compress %s rows [%d:%d): %w", p, start, end, err)
			}
			entry.Pages = append(entry.Pages, pageEntry{
				RowStart: start,
				RowEnd:   end,
				Offset:   uint64(HeaderSize + body.Len()),
				Length:   uint64(len(page)),
				Checksum: hash.Checksum(page),
			})
			body.Write(page)
		}
		m.Tables = append(m.Tables, entry)
	}

	manifestBytes, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	header.TableCount = uint32(len(m.Tables))
	header.ManifestOffset = uint64(HeaderSize + body.Len())
	header.ManifestLength = uint64(len(manifestBytes))
	header.ManifestChecksum = hash.Checksum(manifestBytes)

	for _, chunk := range [][]byte{header.Bytes(), body.Bytes(), manifestBytes} {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}

	return nil
}

// Load reads a store written by Save. The returned store keeps the file's compression and page
// size; opts are applied afterwards and may override them.
func Load(r io.Reader, opts ...Option) (*Store, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if header.ManifestOffset+header.ManifestLength > uint64(len(data)) || header.ManifestOffset < HeaderSize {
		return nil, fmt.Errorf("%w: manifest [%d,+%d) outside %d-byte file",
			errs.ErrInvalidHeader, header.ManifestOffset, header.ManifestLength, len(data))
	}
	manifestBytes := data[header.ManifestOffset : header.ManifestOffset+header.ManifestLength]
	if hash.Checksum(manifestBytes) != header.ManifestChecksum {
		return nil, fmt.Errorf("%w: manifest", errs.ErrChecksumMismatch)
	}

	var m manifest
	if err := yaml.Unmarshal(manifestBytes, &m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", errs.ErrInvalidHeader, err)
	}
	if len(m.Tables) != int(header.TableCount) {
		return nil, fmt.Errorf("%w: header lists %d tables, manifest %d", errs.ErrInvalidHeader, header.TableCount, len(m.Tables))
	}

	codec, err := compress.CreateCodec(header.CompressionType(), "page")
	if err != nil {
		return nil, err
	}

	s, err := New(WithCompression(header.CompressionType()), WithPageRows(max(m.PageRows, 1)))
	if err != nil {
		return nil, err
	}
	s.bigEndian = header.IsBigEndian()

	for _, g := range m.Groups {
		if err := s.CreateGroup(g.Path); err != nil {
			return nil, err
		}
		attrs, err := decodeAttrs(g.Attrs)
		if err != nil {
			return nil, err
		}
		obj := s.groups[path.Clean(g.Path)]
		obj.attrs = attrs
		maps.Copy(obj.links, g.Links)
	}

	for _, e := range m.Tables {
		if err := s.loadTable(data, header, codec, e); err != nil {
			return nil, err
		}
	}

	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) loadTable(data []byte, header Header, codec compress.Codec, e tableEntry) error {
	if e.ID != hash.ID(e.Path) {
		return fmt.Errorf("%w: table id of %s does not match its path", errs.ErrInvalidHeader, e.Path)
	}

	layout := format.Layout{Name: e.Layout, Fields: e.Fields}
	if err := s.CreateTable(e.Path, layout, e.Rows, e.Cols); err != nil {
		return err
	}
	attrs, err := decodeAttrs(e.Attrs)
	if err != nil {
		return err
	}
	t := s.tables[path.Clean(e.Path)]
	t.attrs = attrs
	maps.Copy(t.links, e.Links)

	rowWidth := t.cols * layout.Width()
	for _, pg := range e.Pages {
		if pg.Offset < HeaderSize || pg.Offset+pg.Length > header.ManifestOffset {
			return fmt.Errorf("%w: page %s rows [%d:%d) outside payload", errs.ErrInvalidHeader, e.Path, pg.RowStart, pg.RowEnd)
		}
		if pg.RowStart < 0 || pg.RowEnd > t.rows || pg.RowStart > pg.RowEnd {
			return fmt.Errorf("%w: page %s rows [%d:%d) of %d", errs.ErrOutOfBounds, e.Path, pg.RowStart, pg.RowEnd, t.rows)
		}

		page := data[pg.Offset : pg.Offset+pg.Length]
		if hash.Checksum(page) != pg.Checksum {
			return fmt.Errorf("%w: %s rows [%d:%d)", errs.ErrChecksumMismatch, e.Path, pg.RowStart, pg.RowEnd)
		}
		raw, err := codec.Decompress(page)
		if err != nil {
			return fmt.Errorf("decompress %s rows [%d:%d): %w", e.Path, pg.RowStart, pg.RowEnd, err)
		}

		dst := t.data[pg.RowStart*rowWidth : pg.RowEnd*rowWidth]
		if len(raw) != 4*len(dst) {
			return fmt.Errorf("%w: page %s rows [%d:%d) holds %d bytes, want %d",
				errs.ErrReshape, e.Path, pg.RowStart, pg.RowEnd, len(raw), 4*len(dst))
		}
		if err := endian.DecodeFloat32s(header.Engine(), dst, raw); err != nil {
			return err
		}
	}

	return nil
}

// SaveFile writes the store to the named file, replacing it.
func (s *Store) SaveFile(name string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := s.Save(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("save %s: %w", name, err)
	}

	return f.Close()
}

// Open loads the store saved in the named file.
func Open(name string, opts ...Option) (*Store, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := Load(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	return s, nil
}
