package readers

import (
	"fmt"
	"hash/crc32"

	"github.com/sirupsen/logrus"

	"tqedit/types"
)

// Fixed framing sizes, in bytes.
const (
	BeginRecordLen = 4 + len(types.BeginBlock) + 4 // key prefix, key, size
	EndRecordLen   = 4 + len(types.EndBlock) + 4   // key prefix, key, marker
	MinBlockLen    = BeginRecordLen + EndRecordLen
	ChecksumLen    = 4
)

type ParseState int

const (
	PS_INIT ParseState = iota
	PS_READ_BUFFER
	PS_DETECT_PLATFORM
	PS_PARSE_HEADER
	PS_PARSE_BODY
	PS_READY
	PS_FAILED
)

func (s ParseState) String() string {
	return []string{"Init", "ReadBuffer", "DetectPlatform", "ParseHeader", "ParseBody", "Ready", "Failed"}[s]
}

// Format is everything the tokenizer needs to know about one kind of save file.
// Only Lookup is mandatory; every hook may be nil.
type Format struct {
	Name string

	// MinSize rejects files too short to hold a header.
	MinSize int
	// Checksum means the last 4 bytes are a CRC-32 of everything before them.
	Checksum bool
	// InitialPlatform is assumed until a sentinel variable says otherwise.
	InitialPlatform types.Platform

	// Lookup resolves a variable's type for a platform.  ok is false for names the
	// platform doesn't have.
	Lookup func(p types.Platform, name string) (t types.VarType, ok bool)

	// PreParse runs before anything is read.
	PreParse func(p *Parser) error
	// PreprocessVariable sees every key before its value is decoded; this is where
	// sentinels switch the platform.
	PreprocessVariable func(p *Parser, name string, keyOffset int, bt types.BlockType)
	// FilterBlockType may retype the current block based on a variable it holds.
	// It runs before PreprocessVariable, which sees the updated type.
	FilterBlockType func(bt types.BlockType, name string) types.BlockType
	// PrepareSpecialVariable may file a variable in the block's special store.
	PrepareSpecialVariable func(p *Parser, v *types.Variable)
	// ProcessSpecialVariables runs at the end of each block, with that block's store.
	ProcessSpecialVariables func(p *Parser, b *types.Block)
	// ReadHeader copies a root-level variable into the header summary.
	ReadHeader func(h *types.HeaderInfo, v *types.Variable)
	// ValidateHeader rejects unsupported files before the body is parsed.
	ValidateHeader func(h types.HeaderInfo) error
}

// Parser is a single-use tokenizer session.  Once it has failed it stays failed.
type Parser struct {
	State    ParseState
	format   *Format
	buf      []byte
	platform types.Platform
	index    *types.Index
	special  map[string][]*types.Variable
	log      *logrus.Entry
}

func NewParser(f *Format) *Parser {
	return &Parser{
		format: f,
		log:    logrus.WithField("format", f.Name),
	}
}

// Parse is a shortcut for NewParser(f).Parse(buf).
func Parse(buf []byte, f *Format) (*types.Index, error) {
	return NewParser(f).Parse(buf)
}

func (p *Parser) Platform() types.Platform {
	return p.platform
}

func (p *Parser) SetPlatform(pl types.Platform) {
	if pl != p.platform {
		p.log.WithField("platform", pl).Info("platform detected")
	}
	p.platform = pl
}

// Special returns the variables filed under key in the current block.
func (p *Parser) Special(key string) []*types.Variable {
	return p.special[key]
}

func (p *Parser) PutSpecial(key string, v *types.Variable) {
	p.special[key] = append(p.special[key], v)
}

func (p *Parser) fail(err error) (*types.Index, error) {
	p.State = PS_FAILED
	p.index = nil
	p.log.WithError(err).Debug("parse failed")
	return nil, err
}

// Parse tokenizes buf into an Index.  buf must not be modified afterwards: the
// index and any overlay built on it refer to it by offset.
func (p *Parser) Parse(buf []byte) (*types.Index, error) {
	if p.State != PS_INIT {
		return p.fail(types.NewError(types.KindOther, "parse", -1, "parser already used (state "+p.State.String()+")"))
	}

	p.State = PS_READ_BUFFER
	if len(buf) < p.format.MinSize || len(buf) == 0 {
		return p.fail(types.NewError(types.KindMalformedRecord, "parse", 0,
			fmt.Sprintf("file too short (%v bytes)", len(buf))))
	}
	body := buf
	if p.format.Checksum {
		if len(buf) < ChecksumLen+1 {
			return p.fail(types.NewError(types.KindMalformedRecord, "parse", 0, "no room for checksum"))
		}
		body = buf[:len(buf)-ChecksumLen]
		cur := len(body)
		stored, _ := ReadUint32(buf, &cur)
		if sum := crc32.ChecksumIEEE(body); sum != stored {
			return p.fail(types.NewError(types.KindMalformedRecord, "parse", len(body),
				fmt.Sprintf("checksum mismatch: stored %08x, computed %08x", stored, sum)))
		}
	}
	p.buf = body

	p.State = PS_DETECT_PLATFORM
	p.platform = p.format.InitialPlatform
	if p.format.PreParse != nil {
		if err := p.format.PreParse(p); err != nil {
			return p.fail(err)
		}
	}

	p.State = PS_PARSE_HEADER
	header, err := p.parse_header()
	if err != nil {
		return p.fail(err)
	}

	p.State = PS_PARSE_BODY
	p.index = types.NewIndex()
	p.index.Checksum = p.format.Checksum
	root := &types.Block{Start: 0, End: len(body) - 1, Size: len(body), Type: types.BT_FILE}
	p.index.Root = root
	p.index.Blocks[0] = root
	p.special = map[string][]*types.Variable{}
	if err := p.parse_items(root, 0, len(body), false); err != nil {
		return p.fail(err)
	}
	if p.format.ProcessSpecialVariables != nil {
		p.format.ProcessSpecialVariables(p, root)
	}
	header.Platform = p.platform
	p.index.Header = header

	p.State = PS_READY
	p.log.WithFields(logrus.Fields{
		"blocks":   len(p.index.Blocks),
		"platform": p.platform,
		"size":     len(buf),
	}).Debug("parsed")
	return p.index, nil
}

// parse_header reads only the root-level variables, skipping every block by its
// declared size, then validates them.
func (p *Parser) parse_header() (types.HeaderInfo, error) {
	h := types.HeaderInfo{}
	root := &types.Block{Start: 0, End: len(p.buf) - 1, Size: len(p.buf), Type: types.BT_FILE}
	if err := p.parse_items(root, 0, len(p.buf), true); err != nil {
		return h, err
	}
	if p.format.ReadHeader != nil {
		for _, v := range root.Vars.All() {
			p.format.ReadHeader(&h, v)
		}
	}
	h.Platform = p.platform
	if p.format.ValidateHeader != nil {
		if err := p.format.ValidateHeader(h); err != nil {
			return h, err
		}
	}
	return h, nil
}

// parse_items reads records of block b from cur up to (not including) limit.
// headerOnly skips nested blocks without looking inside them.
func (p *Parser) parse_items(b *types.Block, cur int, limit int, headerOnly bool) error {
	// Slicing at limit makes any record that runs past the block a truncation error.
	buf := p.buf[:limit]

	for cur < limit {
		keyOffset := cur
		name, err := ReadString(buf, &cur)
		if err != nil {
			return err
		}
		if name == "" {
			return types.NewError(types.KindMalformedRecord, "parse", keyOffset, "empty variable name")
		}

		if name == types.BeginBlock {
			child, err := p.parse_block(b, keyOffset, limit, headerOnly)
			if err != nil {
				return err
			}
			cur = child.End + 1
			if !headerOnly {
				b.Items = append(b.Items, types.Item{Block: child})
			}
			continue
		}
		if name == types.EndBlock {
			return types.NewError(types.KindMalformedRecord, "parse", keyOffset, "unexpected end_block")
		}

		if p.format.FilterBlockType != nil {
			b.Type = p.format.FilterBlockType(b.Type, name)
		}
		if p.format.PreprocessVariable != nil {
			p.format.PreprocessVariable(p, name, keyOffset, b.Type)
		}

		t, ok := p.format.Lookup(p.platform, name)
		if !ok || t == types.VT_UNKNOWN {
			return types.NewError(types.KindMalformedRecord, "parse", keyOffset,
				fmt.Sprintf("unknown variable %q for platform %v", name, p.platform))
		}

		valueOffset := cur
		value, n, err := Decode(buf, cur, t)
		if err != nil {
			return err
		}
		cur += n

		v := &types.Variable{
			Name:        name,
			Type:        t,
			Value:       value,
			KeyOffset:   keyOffset,
			ValueOffset: valueOffset,
			Length:      cur - keyOffset,
			BlockOffset: b.Start,
		}
		if !headerOnly && p.format.PrepareSpecialVariable != nil {
			p.format.PrepareSpecialVariable(p, v)
		}

		b.Vars.Put(v)
		b.Items = append(b.Items, types.Item{Var: v})
		if !headerOnly {
			p.index.PutVarLocation(name, b.Start)
		}
		p.log.WithFields(logrus.Fields{"name": name, "type": t, "offset": keyOffset}).Trace("variable")
	}

	return nil
}

// parse_block handles a block whose begin_block key sits at start; the cursor is
// just past the key.  The caller resumes at End+1 whatever happened inside.
func (p *Parser) parse_block(parent *types.Block, start int, limit int, headerOnly bool) (*types.Block, error) {
	cur := start + BeginRecordLen - 4
	size, err := ReadUint32(p.buf[:limit], &cur)
	fits := err == nil && int64(size) >= int64(MinBlockLen) && int64(start)+int64(size) <= int64(limit)
	if !fits && headerOnly {
		// a bad size ends the header; the body pass reports it once the version is known good
		return &types.Block{Start: start, End: limit - 1, Size: limit - start, Type: types.BT_BODY, Parent: parent}, nil
	}
	if err != nil {
		return nil, err
	}
	if !fits {
		return nil, types.NewError(types.KindMalformedRecord, "parse", start,
			fmt.Sprintf("block size %v does not fit (limit %v)", size, limit))
	}

	child := &types.Block{
		Start:  start,
		End:    start + int(size) - 1,
		Size:   int(size),
		Type:   types.BT_BODY,
		Parent: parent,
	}
	if headerOnly {
		p.log.WithField("offset", start).Trace("skipping block in header pass")
		return child, nil
	}
	p.index.Blocks[start] = child

	outer := p.special
	p.special = map[string][]*types.Variable{}
	defer func() { p.special = outer }()

	endRecord := child.End + 1 - EndRecordLen
	if err := p.parse_items(child, cur, endRecord, false); err != nil {
		return nil, err
	}

	ecur := endRecord
	name, err := ReadString(p.buf, &ecur)
	if err != nil {
		return nil, err
	}
	marker, err := ReadUint32(p.buf, &ecur)
	if err != nil {
		return nil, err
	}
	if name != types.EndBlock || marker != types.EndMarker {
		return nil, types.NewError(types.KindMalformedRecord, "parse", endRecord,
			fmt.Sprintf("block at %v is not closed by end_block", start))
	}

	if p.format.ProcessSpecialVariables != nil {
		p.format.ProcessSpecialVariables(p, child)
	}
	return child, nil
}
