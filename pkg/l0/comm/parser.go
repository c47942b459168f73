package comm

// DefaultLineCapacity is the size of the line buffer, terminator excluded
// slot included, as on the device.
const DefaultLineCapacity = 256

// Terminator ends a line in both directions.
const Terminator byte = '\n'

// Parser accumulates bytes into lines.
// It never grows: once capacity-1 bytes are buffered, further bytes up to
// the next terminator are dropped and the line is delivered truncated.
type Parser struct {
	buf      []byte
	cursor   int
	overflow bool
}

// ParseState indicates where the parser is within a line.
type ParseState int

const (
	// StateIdle means no byte of the next line has been received.
	StateIdle ParseState = iota
	// StateReceiving means a line is being accumulated.
	StateReceiving
	// StateOverflow means the buffer is full and bytes are being dropped
	// until the terminator arrives.
	StateOverflow
)

// String implements fmt.Stringer.
func (s ParseState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateOverflow:
		return "overflow"
	}
	return "unknown"
}

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	State ParseState
	// Line is set when a terminator completed a line. It's a copy owned by
	// the caller and excludes the terminator.
	Line []byte
	// Dropped is set when the byte didn't fit in the buffer.
	Dropped bool
}

// HasLine indicates a line was completed by this step.
func (r ParseResult) HasLine() bool {
	return r.Line != nil
}

// NewParser creates a Parser holding at most capacity-1 bytes per line.
func NewParser(capacity int) *Parser {
	if capacity < 2 {
		capacity = 2
	}
	return &Parser{buf: make([]byte, capacity)}
}

// Capacity returns the buffer capacity.
func (p *Parser) Capacity() int {
	p.init()
	return len(p.buf)
}

// Len returns the number of buffered bytes.
func (p *Parser) Len() int {
	return p.cursor
}

// State gets the current state.
func (p *Parser) State() ParseState {
	switch {
	case p.overflow:
		return StateOverflow
	case p.cursor > 0:
		return StateReceiving
	}
	return StateIdle
}

// Reset discards the partially received line.
func (p *Parser) Reset() {
	p.cursor, p.overflow = 0, false
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	p.init()
	switch {
	case b == Terminator:
		pr.Line = make([]byte, p.cursor)
		copy(pr.Line, p.buf[:p.cursor])
		p.Reset()
	case p.cursor < len(p.buf)-1:
		p.buf[p.cursor] = b
		p.cursor++
	default:
		p.overflow = true
		pr.Dropped = true
	}
	pr.State = p.State()
	return
}

// Feed parses a chunk and returns all completed lines and the number
// of dropped bytes.
func (p *Parser) Feed(data []byte) (lines [][]byte, dropped int) {
	for _, b := range data {
		pr := p.Parse(b)
		if pr.Dropped {
			dropped++
		}
		if pr.HasLine() {
			lines = append(lines, pr.Line)
		}
	}
	return
}

func (p *Parser) init() {
	if p.buf == nil {
		p.buf = make([]byte, DefaultLineCapacity)
	}
}
