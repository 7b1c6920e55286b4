package gdb

import "github.com/sven-run/sven/internal/tool"

// Tools builds the seven GDB tool-group members sharing one Session,
// ready for registration into a tool.Registry (§4.9).
func Tools(cfg Config) []tool.Tool {
	s := NewSession(cfg)
	return []tool.Tool{
		StartServer{Session: s},
		Connect{Session: s},
		Command{Session: s},
		Interrupt{Session: s},
		WaitStopped{Session: s},
		Status{Session: s},
		Stop{Session: s},
	}
}
