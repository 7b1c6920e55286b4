package mi

import "strconv"

// StatusKind enumerates the coarse execution state of the debuggee, read
// off the most recent *running/*stopped/*exited async record.
type StatusKind int

const (
	Unstarted StatusKind = iota
	Running
	Stopped
	Exited
)

// StoppedInfo carries the frame sven read off a *stopped async record's
// frame={...} tuple.
type StoppedInfo struct {
	Reason   string
	Function string
	File     string
	Line     int
	Address  uint64
}

// Status is the cached, non-blocking execution-state snapshot exposed by
// Client.Status.
type Status struct {
	Kind        StatusKind
	Stopped     StoppedInfo
	ExitReason  string
}

func (s Status) String() string {
	switch s.Kind {
	case Running:
		return "running"
	case Stopped:
		loc := s.Stopped.Function
		if s.Stopped.File != "" {
			loc += " (" + s.Stopped.File + ":" + strconv.Itoa(s.Stopped.Line) + ")"
		}
		return "stopped: " + s.Stopped.Reason + " at " + loc
	case Exited:
		return "exited: " + s.ExitReason
	default:
		return "unstarted"
	}
}

func parseStoppedInfo(fields map[string]value) StoppedInfo {
	v := value{fields: fields}
	info := StoppedInfo{}
	if r, ok := v.Field("reason"); ok {
		info.Reason = r.Str()
	}
	frame, ok := v.Field("frame")
	if !ok {
		return info
	}
	if f, ok := frame.Field("func"); ok {
		info.Function = f.Str()
	}
	if f, ok := frame.Field("file"); ok {
		info.File = f.Str()
	}
	if f, ok := frame.Field("line"); ok {
		if n, err := strconv.Atoi(f.Str()); err == nil {
			info.Line = n
		}
	}
	if f, ok := frame.Field("addr"); ok {
		if n, err := strconv.ParseUint(trimHexPrefix(f.Str()), 16, 64); err == nil {
			info.Address = n
		}
	}
	return info
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// GeneralMessage is an out-of-band stream record (console/log/target) not
// tied to any foreground command.
type GeneralMessage struct {
	Kind string // "console", "log", "target"
	Text string
}
