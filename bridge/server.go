package bridge

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strconv"

	"github.com/piolab/rp2040pio/regs"
)

// Server is the bridge's TCP listener: one accept loop, one goroutine
// per connection, each serializing on the shared bus (spec §4.K).
// Grounded on RegisterServer.java's listen()/serve() pair and on
// IntuitionAmiga-IntuitionEngine/runtime_ipc.go's listener-plus-
// per-connection-goroutine shape.
type Server struct {
	bus *regs.AddressBus
	log *log.Logger
}

// NewServer returns a bridge serving bus.
func NewServer(bus *regs.AddressBus, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{bus: bus, log: logger}
}

// Serve accepts connections on addr (e.g. ":1088") until Accept fails,
// and returns that error. The listener is private to Serve; callers
// have no handle with which to close it. It blocks; callers typically
// run it in its own goroutine.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	s.log.Printf("bridge: listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// handleConn services one client connection: read a line, dispatch it
// against the bus, write one response line, repeat until `q` or a
// socket error (spec's IOError: log and keep accepting other clients).
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		resp, quit := s.dispatch(line)
		if resp != "" {
			if _, err := fmt.Fprintf(conn, "%s\n", resp); err != nil {
				s.log.Printf("bridge: write to %s failed: %v", remote, err)
				return
			}
		}
		if quit {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Printf("bridge: read from %s failed: %v", remote, err)
	}
}

// dispatch parses and executes one request line, holding no lock of
// its own: every bus call already serializes on the emulator's
// per-block mutex, and dispatch never touches the socket, matching the
// "acquire the emulator lock briefly, don't hold it during I/O" rule
// of spec §5/§4.K.
func (s *Server) dispatch(line string) (response string, quit bool) {
	req := parseRequest(line)
	switch req.cmd {
	case "":
		return "", false
	case "v":
		if len(req.args) > 0 {
			return FormatResponse(CodeUnparsedInput, req.args[0]), false
		}
		return FormatResponse(CodeOK, Version), false
	case "h", "?":
		if len(req.args) > 0 {
			return FormatResponse(CodeUnparsedInput, req.args[0]), false
		}
		return FormatResponse(CodeOK, HelpText), false
	case "q":
		if len(req.args) > 0 {
			return FormatResponse(CodeUnparsedInput, req.args[0]), false
		}
		// Spec §4.K: quit sends no response; the closed connection is
		// itself the signal. CodeBye is reserved for a future
		// server-initiated shutdown notice.
		return "", true
	case "p":
		return s.dispatchProvides(req.args)
	case "l":
		return s.dispatchLabel(req.args)
	case "r":
		return s.dispatchRead(req.args)
	case "w":
		return s.dispatchWrite(req.args)
	case "i":
		return s.dispatchWait(req.args)
	default:
		return FormatResponse(CodeUnknownCommand, req.cmd), false
	}
}

func (s *Server) dispatchProvides(args []string) (string, bool) {
	addr, resp, ok := parseAddr(args, 1)
	if !ok {
		return resp, false
	}
	v := s.bus.Provides(addr)
	return FormatResponse(CodeOK, strconv.FormatBool(v)), false
}

func (s *Server) dispatchLabel(args []string) (string, bool) {
	addr, resp, ok := parseAddr(args, 1)
	if !ok {
		return resp, false
	}
	return FormatResponse(CodeOK, s.bus.Label(addr)), false
}

func (s *Server) dispatchRead(args []string) (string, bool) {
	addr, resp, ok := parseAddr(args, 1)
	if !ok {
		return resp, false
	}
	v := s.bus.Read(addr)
	return FormatResponse(CodeOK, strconv.FormatUint(uint64(v), 10)), false
}

func (s *Server) dispatchWrite(args []string) (string, bool) {
	if len(args) < 2 {
		return FormatResponse(CodeMissingOperand, "w"), false
	}
	if len(args) > 2 {
		return FormatResponse(CodeUnparsedInput, args[2]), false
	}
	addr, err := ParseUint32(args[0])
	if err != nil {
		return FormatResponse(CodeNumberExpected, args[0]), false
	}
	value, err := ParseUint32(args[1])
	if err != nil {
		return FormatResponse(CodeNumberExpected, args[1]), false
	}
	s.bus.Write(addr, value)
	return FormatResponse(CodeOK, ""), false
}

func (s *Server) dispatchWait(args []string) (string, bool) {
	if len(args) < 2 {
		return FormatResponse(CodeMissingOperand, "i"), false
	}
	if len(args) > 5 {
		return FormatResponse(CodeUnparsedInput, args[5]), false
	}
	nums := make([]uint32, len(args))
	for i, a := range args {
		v, err := ParseUint32(a)
		if err != nil {
			return FormatResponse(CodeNumberExpected, a), false
		}
		nums[i] = v
	}
	addr, expected := nums[0], nums[1]
	mask := uint32(0xffffffff)
	var cycles, millis uint32
	if len(nums) > 2 {
		mask = nums[2]
	}
	if len(nums) > 3 {
		cycles = nums[3]
	}
	if len(nums) > 4 {
		millis = nums[4]
	}
	if err := s.bus.Wait(addr, expected, mask, cycles, millis, 0); err != nil {
		return FormatResponse(CodeUnexpected, err.Error()), false
	}
	v := s.bus.Read(addr)
	return FormatResponse(CodeOK, strconv.FormatUint(uint64(v), 10)), false
}

// parseAddr validates a single-address command's argument list.
func parseAddr(args []string, want int) (addr uint32, resp string, ok bool) {
	if len(args) < want {
		return 0, FormatResponse(CodeMissingOperand, "addr"), false
	}
	if len(args) > want {
		return 0, FormatResponse(CodeUnparsedInput, args[want]), false
	}
	addr, err := ParseUint32(args[0])
	if err != nil {
		return 0, FormatResponse(CodeNumberExpected, args[0]), false
	}
	return addr, "", true
}
