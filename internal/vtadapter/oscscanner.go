package vtadapter

// oscMaxLen mirrors arcterm.c's tsm_set_strhandler(term.vte, str_callback,
// 256, NULL): OSC message bodies are capped at 256 bytes.
const oscMaxLen = 256

// OSCMessage is one decoded Operating-System-Command string, handed to the
// adapter's OSC callback the way arcterm.c's str_callback receives
// (group, msg, len, crop).
type OSCMessage struct {
	Group string // the leading numeric field, e.g. "0", "1", "2", "4", "52"
	Body  string // the text after the first ';'
	Crop  bool   // true if the message was truncated at oscMaxLen before a terminator arrived
}

// oscScanner incrementally extracts OSC (ESC ] ... BEL | ESC ] ... ESC \)
// sequences from a byte stream that may split a single OSC across multiple
// reads. Bytes outside an OSC sequence are skipped.
type oscScanner struct {
	inOSC   bool
	buf     []byte
	sawEsc  bool // for recognizing the ST (ESC \) terminator
}

// Feed scans data, invoking onOSC for each complete OSC message found. It
// does not pass other bytes on; the caller forwards the whole of data to
// the VT engine itself (Engine.Feed).
func (s *oscScanner) Feed(data []byte, onOSC func(OSCMessage)) {
	for i := 0; i < len(data); i++ {
		b := data[i]

		if !s.inOSC {
			if b == 0x1B && i+1 < len(data) && data[i+1] == ']' {
				s.inOSC = true
				s.buf = s.buf[:0]
				s.sawEsc = false
				i++ // consume ']'
				continue
			}
			continue
		}

		switch {
		case b == 0x07: // BEL terminator
			onOSC(decodeOSC(s.buf, false))
			s.inOSC = false
		case s.sawEsc && b == '\\': // ST terminator (ESC \)
			onOSC(decodeOSC(s.buf, false))
			s.inOSC = false
			s.sawEsc = false
		case b == 0x1B:
			s.sawEsc = true
		default:
			if s.sawEsc {
				// A lone ESC not followed by '\' is not a valid ST; treat the
				// pending ESC as data and keep scanning.
				s.buf = append(s.buf, 0x1B)
				s.sawEsc = false
			}
			s.buf = append(s.buf, b)
			if len(s.buf) >= oscMaxLen {
				onOSC(decodeOSC(s.buf, true))
				s.inOSC = false
			}
		}
	}
}

func decodeOSC(buf []byte, crop bool) OSCMessage {
	msg := string(buf)
	group := ""
	body := msg
	for i, c := range msg {
		if c == ';' {
			group = msg[:i]
			body = msg[i+1:]
			break
		}
	}
	return OSCMessage{Group: group, Body: body, Crop: crop}
}
