package wire

// ParsedMessage is a complete RTSP response: status line, headers and
// body all parsed, ready for the session layer to correlate by CSeq.
type ParsedMessage struct {
	Status  Status
	Headers []Header
	Body    []byte
}

// Header returns the first header matching name (case-insensitive), or "".
func (m *ParsedMessage) Header(name string) string {
	for _, h := range m.Headers {
		if strEqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func strEqualFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Assembler drives a Parser to completion across however many Feed
// calls it takes, handing back one ParsedMessage per full response
// along with how many leading bytes of data it consumed. Feed must be
// called with the same growing buffer (the unconsumed tail of the
// caller's read buffer) until it reports a non-zero consumed count;
// the caller then advances its own buffer by that amount and may
// start a fresh message with whatever bytes remain.
type Assembler struct {
	parser *Parser
	msg    ParsedMessage
}

// NewAssembler returns an Assembler ready to parse one response.
func NewAssembler() *Assembler {
	return &Assembler{parser: NewParser()}
}

// Feed parses as much of data as currently possible. It returns
// ok=true with the completed message and the number of bytes consumed
// once a full response has been parsed; otherwise ok=false and the
// caller should Feed again once more bytes have arrived.
func (a *Assembler) Feed(data []byte) (msg ParsedMessage, consumed int, ok bool, err error) {
	for {
		item, ok, err := a.parser.ParseNext(data)
		if err != nil {
			return ParsedMessage{}, 0, false, err
		}
		if !ok {
			return ParsedMessage{}, 0, false, nil
		}
		switch item.Kind {
		case ItemStatus:
			a.msg.Status = item.Status
		case ItemHeader:
			a.msg.Headers = append(a.msg.Headers, item.Header)
		case ItemBody:
			a.msg.Body = item.Body
		}
		if a.parser.IsDone() {
			done := a.msg
			consumed := a.parser.ParsedBytes()
			a.parser = NewParser()
			a.msg = ParsedMessage{}
			return done, consumed, true, nil
		}
	}
}
