package webui

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsClient struct {
	io.Reader
	io.Writer
}

func dial(t *testing.T, ts *testServer) io.ReadWriter {
	t.Helper()
	srv := httptest.NewServer(ts.s.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, br, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	return wsClient{Reader: r, Writer: conn}
}

func sendJSON(t *testing.T, c io.ReadWriter, req CommandRequest) Reply {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, wsutil.WriteClientText(c, b))
	return readReply(t, c)
}

func readReply(t *testing.T, c io.ReadWriter) Reply {
	t.Helper()
	b, err := wsutil.ReadServerText(c)
	require.NoError(t, err)
	var reply Reply
	require.NoError(t, json.Unmarshal(b, &reply), string(b))
	return reply
}

func binaryFrame(parts []string, payload []byte) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.WriteByte(byte(len(p)))
		buf.WriteString(p)
	}
	buf.Write(payload)
	return buf.Bytes()
}

func modelAs[T any](t *testing.T, reply Reply) T {
	t.Helper()
	b, err := json.Marshal(reply.Model)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(b, &v))
	return v
}

func TestSocketRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)

	rom := fireRed()
	sum := fingerprint(rom)
	stored := sum + ".gba"

	reply := sendJSON(t, c, CommandRequest{ID: "1", View: "rom", Command: "check", Args: json.RawMessage(`{"checksum":"` + sum + `","ext":"gba"}`)})
	require.Empty(t, reply.Error)
	assert.Equal(t, "1", reply.ID)
	assert.Equal(t, CheckResponse{StoredFilename: stored}, modelAs[CheckResponse](t, reply))

	require.NoError(t, wsutil.WriteClientBinary(c, binaryFrame([]string{"rom", "upload", sum, "gba"}, rom)))
	reply = readReply(t, c)
	require.Empty(t, reply.Error)
	assert.Equal(t, "upload", reply.Command)
	assert.Equal(t, UploadResponse{Success: true, StoredFilename: stored}, modelAs[UploadResponse](t, reply))

	reply = sendJSON(t, c, CommandRequest{View: "rom", Command: "presets", Args: json.RawMessage(`{"stored_filename":"` + stored + `"}`)})
	require.Empty(t, reply.Error)
	assert.Equal(t, "FireRed", modelAs[PresetsResponse](t, reply).Game)

	reply = sendJSON(t, c, CommandRequest{View: "rom", Command: "randomize", Args: json.RawMessage(`{"stored_filename":"` + stored + `","preset":"Standard"}`)})
	require.Empty(t, reply.Error)
	assert.Regexp(t, `_FireRed_Standard\.gba$`, modelAs[RandomizeResponse](t, reply).DownloadURL)
}

func TestSocketErrors(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)

	rom := fireRed()
	sum := fingerprint(rom)

	reply := sendJSON(t, c, CommandRequest{View: "rom", Command: "explode"})
	assert.Equal(t, "Unknown command", reply.Error)

	reply = sendJSON(t, c, CommandRequest{View: "rom", Command: "upload"})
	assert.Equal(t, "Malformed command", reply.Error)

	reply = sendJSON(t, c, CommandRequest{View: "rom", Command: "check", Args: json.RawMessage(`{"checksum":"nope","ext":"gba"}`)})
	assert.Equal(t, "Invalid checksum or extension", reply.Error)

	require.NoError(t, wsutil.WriteClientText(c, []byte("{not json")))
	assert.Equal(t, "Malformed command", readReply(t, c).Error)

	// binary frames only carry uploads:
	require.NoError(t, wsutil.WriteClientBinary(c, binaryFrame([]string{"rom", "check"}, nil)))
	assert.Equal(t, "Malformed command", readReply(t, c).Error)

	require.NoError(t, wsutil.WriteClientBinary(c, binaryFrame([]string{"rom", "upload", fingerprint([]byte("other")), "gba"}, rom)))
	assert.Equal(t, "Checksum mismatch", readReply(t, c).Error)

	// the socket is still usable after errors:
	reply = sendJSON(t, c, CommandRequest{View: "rom", Command: "check", Args: json.RawMessage(`{"checksum":"` + sum + `","ext":"gba"}`)})
	assert.Empty(t, reply.Error)
	assert.False(t, modelAs[CheckResponse](t, reply).Exists)
}

func TestSocketAnswersPing(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)

	require.NoError(t, wsutil.WriteClientMessage(c, ws.OpPing, []byte("are you there")))
	frame, err := ws.ReadFrame(c)
	require.NoError(t, err)
	assert.Equal(t, ws.OpPong, frame.Header.OpCode)
	assert.Equal(t, "are you there", string(frame.Payload))

	// commands still flow after the ping:
	reply := sendJSON(t, c, CommandRequest{View: "rom", Command: "presets", Args: json.RawMessage(`{}`)})
	assert.Equal(t, "Missing stored_filename", reply.Error)

	require.NoError(t, wsutil.WriteClientMessage(c, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
	frame, err = ws.ReadFrame(c)
	require.NoError(t, err)
	assert.Equal(t, ws.OpClose, frame.Header.OpCode)
}

func TestCommandFor(t *testing.T) {
	ts := newTestServer(t)

	for _, name := range []string{"check", "upload", "presets", "randomize"} {
		ce, err := ts.s.CommandFor("rom", name)
		require.NoError(t, err, name)
		assert.NotNil(t, ce)
	}

	_, err := ts.s.CommandFor("settings", "check")
	assert.ErrorIs(t, err, errUnknownCommand)
}

