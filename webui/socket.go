package webui

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"romrando/interfaces"
)

const romView = "rom"

// CommandRequest is a JSON text frame sent by the view.
type CommandRequest struct {
	ID      string          `json:"id,omitempty"`
	View    string          `json:"v"`
	Command string          `json:"c"`
	Args    json.RawMessage `json:"a"`
}

// Reply answers one CommandRequest or binary command frame.
type Reply struct {
	ID      string      `json:"id,omitempty"`
	View    string      `json:"v"`
	Command string      `json:"c"`
	Model   interface{} `json:"m,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details string      `json:"details,omitempty"`
}

// uploadArgs is what a binary "upload" frame carries after its header strings.
type uploadArgs struct {
	Checksum string
	Ext      string
	Data     io.Reader
}

type checkCommand struct{ s *Server }

func (c checkCommand) CreateArgs() interfaces.CommandArgs { return &checkArgs{} }

func (c checkCommand) Execute(_ context.Context, args interfaces.CommandArgs) (interface{}, error) {
	a := args.(*checkArgs)
	return c.s.Check(a.Checksum, a.Ext)
}

type uploadCommand struct{ s *Server }

func (c uploadCommand) CreateArgs() interfaces.CommandArgs { return nil }

func (c uploadCommand) Execute(_ context.Context, args interfaces.CommandArgs) (interface{}, error) {
	a, ok := args.(*uploadArgs)
	if !ok {
		return nil, errMalformedCommand
	}
	return c.s.Upload(a.Checksum, a.Ext, a.Data)
}

type presetsCommand struct{ s *Server }

func (c presetsCommand) CreateArgs() interfaces.CommandArgs { return &presetsArgs{} }

func (c presetsCommand) Execute(_ context.Context, args interfaces.CommandArgs) (interface{}, error) {
	return c.s.Presets(args.(*presetsArgs).StoredFilename)
}

type randomizeCommand struct{ s *Server }

func (c randomizeCommand) CreateArgs() interfaces.CommandArgs { return &randomizeArgs{} }

func (c randomizeCommand) Execute(ctx context.Context, args interfaces.CommandArgs) (interface{}, error) {
	a := args.(*randomizeArgs)
	return c.s.Randomize(ctx, a.StoredFilename, a.Preset)
}

// CommandFor implements interfaces.ViewCommandHandler for the socket.
func (s *Server) CommandFor(view, command string) (interfaces.Command, error) {
	if view != romView {
		return nil, fmt.Errorf("%w: view '%s'", errUnknownCommand, view)
	}
	switch command {
	case "check":
		return checkCommand{s}, nil
	case "upload":
		return uploadCommand{s}, nil
	case "presets":
		return presetsCommand{s}, nil
	case "randomize":
		return randomizeCommand{s}, nil
	default:
		return nil, fmt.Errorf("%w: command '%s'", errUnknownCommand, command)
	}
}

// Socket is one websocket connection to a view.
type Socket struct {
	s      *Server
	conn   net.Conn
	logger *log.Logger

	// write channel:
	q chan Reply
	// serializes frames written by the writer goroutine and control replies from the reader:
	wmu sync.Mutex
}

func (s *Server) handleWebsocket(rw http.ResponseWriter, req *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(req, rw)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	k := &Socket{
		s:      s,
		conn:   conn,
		logger: s.logger.WithPrefix("ws").With("remote", conn.RemoteAddr().String()),
		q:      make(chan Reply, 10),
	}
	k.logger.Debug("connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		k.writeHandler()
	}()

	// a hijacked request's context ends with the handler, so the socket gets its own:
	ctx, cancel := context.WithCancel(context.WithoutCancel(req.Context()))
	defer cancel()
	k.readHandler(ctx)
	<-done
}

func (k *Socket) readHandler(ctx context.Context) {
	// the reader is in control of the lifetime of the socket:
	defer func() {
		close(k.q)
		_ = k.conn.Close()
		k.logger.Debug("disconnected")
	}()

	r := wsutil.NewReader(k.conn, ws.StateServerSide)
	for {
		hdr, err := r.NextFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				k.logger.Debug("error reading next websocket frame", "err", err)
			}
			return
		}
		if hdr.OpCode.IsControl() {
			// answers pings, and echoes a close before reporting it as an error:
			k.wmu.Lock()
			err = wsutil.ControlFrameHandler(k.conn, ws.StateServerSide)(hdr, r)
			k.wmu.Unlock()
			if err != nil {
				var closed wsutil.ClosedError
				if !errors.As(err, &closed) {
					k.logger.Debug("control frame", "err", err)
				}
				return
			}
			continue
		}

		var reply Reply
		switch hdr.OpCode {
		case ws.OpText:
			reply = k.handleText(ctx, r)
		case ws.OpBinary:
			reply = k.handleBinary(ctx, r)
		default:
			reply = Reply{Error: errMalformedCommand.message}
		}

		if err = r.Discard(); err != nil {
			k.logger.Debug("discard", "err", err)
			return
		}
		k.q <- reply
	}
}

func (k *Socket) handleText(ctx context.Context, r io.Reader) Reply {
	var creq CommandRequest
	if err := json.NewDecoder(r).Decode(&creq); err != nil {
		k.logger.Debug("error reading json command request", "err", err)
		return Reply{Error: errMalformedCommand.message}
	}
	reply := Reply{ID: creq.ID, View: creq.View, Command: creq.Command}

	ce, err := k.s.CommandFor(creq.View, creq.Command)
	if err != nil {
		return k.failed(reply, err)
	}

	// instantiate a specific args type for the command:
	args := ce.CreateArgs()
	if args == nil {
		return k.failed(reply, errMalformedCommand)
	}
	if len(creq.Args) > 0 {
		if err = json.Unmarshal(creq.Args, args); err != nil {
			return k.failed(reply, errMalformedCommand)
		}
	}

	return k.execute(ctx, reply, ce, args)
}

// handleBinary reads a binary command frame:
//
//	[1] view name string length
//	[n] view name string
//	[1] command name string length
//	[n] command name string
//	[1] checksum string length
//	[n] checksum string
//	[1] extension string length
//	[n] extension string
//	[...] ROM image
func (k *Socket) handleBinary(ctx context.Context, r io.Reader) Reply {
	var reply Reply
	var err error
	if reply.View, err = readTinyString(r); err != nil {
		return k.failed(reply, errMalformedCommand)
	}
	if reply.Command, err = readTinyString(r); err != nil {
		return k.failed(reply, errMalformedCommand)
	}

	ce, err := k.s.CommandFor(reply.View, reply.Command)
	if err != nil {
		return k.failed(reply, err)
	}
	if ce.CreateArgs() != nil {
		return k.failed(reply, errMalformedCommand)
	}

	args := &uploadArgs{}
	if args.Checksum, err = readTinyString(r); err != nil {
		return k.failed(reply, errMalformedCommand)
	}
	if args.Ext, err = readTinyString(r); err != nil {
		return k.failed(reply, errMalformedCommand)
	}
	args.Data = &capReader{r: r, n: k.s.cfg.MaxUpload}

	return k.execute(ctx, reply, ce, args)
}

func (k *Socket) execute(ctx context.Context, reply Reply, ce interfaces.Command, args interfaces.CommandArgs) Reply {
	model, err := ce.Execute(ctx, args)
	if err != nil {
		return k.failed(reply, err)
	}
	reply.Model = model
	return reply
}

func (k *Socket) failed(reply Reply, err error) Reply {
	status, body := apiError(err)
	if status >= 500 {
		k.logger.Error("command failed", "v", reply.View, "c", reply.Command, "err", err)
	} else {
		k.logger.Debug("command rejected", "v", reply.View, "c", reply.Command, "err", err)
	}
	reply.Error = body.Error
	reply.Details = body.Details
	return reply
}

func (k *Socket) writeHandler() {
	var (
		w       = wsutil.NewWriter(k.conn, ws.StateServerSide, ws.OpText)
		encoder = json.NewEncoder(w)
	)

	// drain the channel even after a write fails so the reader never blocks:
	var broken bool
	for u := range k.q {
		if broken {
			continue
		}
		k.wmu.Lock()
		err := encoder.Encode(&u)
		if err == nil {
			err = w.Flush()
		}
		k.wmu.Unlock()
		if err != nil {
			k.logger.Debug("write reply", "err", err)
			broken = true
		}
	}
}

func readTinyString(buf io.Reader) (value string, err error) {
	var valueLength uint8
	if err = binary.Read(buf, binary.LittleEndian, &valueLength); err != nil {
		return
	}

	valueBytes := make([]byte, valueLength)
	if _, err = io.ReadFull(buf, valueBytes); err != nil {
		return
	}

	value = string(valueBytes)
	return
}

// capReader fails once more than n bytes have been read.
type capReader struct {
	r io.Reader
	n int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.n < 0 {
		return 0, errTooLarge
	}
	if int64(len(p)) > c.n+1 {
		p = p[:c.n+1]
	}
	n, err := c.r.Read(p)
	c.n -= int64(n)
	if c.n < 0 {
		return n, errTooLarge
	}
	return n, err
}
