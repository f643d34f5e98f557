package stomp

import (
	"io"
	"net"
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_Receive(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	go func() {
		defer server.Close()
		_, _ = io.WriteString(server, "\n\nRECEIPT\nreceipt-id:1\n\n\x00\n")
		_, _ = io.WriteString(server, "MESSAGE\ndestination:/topic/wallet/1\nsubscription:sub-0\ncontent-length:3\n\na\x00b\x00")
		_, _ = io.WriteString(server, "\r\nERROR\r\nmessage:bad token\r\n\r\ndenied\x00")
	}()

	cn := newConn(client)

	f, err := cn.receive()
	require.NoError(t, err)
	assert.Equal(t, frame.RECEIPT, f.Command)

	f, err = cn.receive()
	require.NoError(t, err)
	assert.Equal(t, frame.MESSAGE, f.Command)
	assert.Equal(t, "sub-0", f.Header.Get(frame.Subscription))
	assert.Equal(t, []byte("a\x00b"), f.Body)

	f, err = cn.receive()
	require.NoError(t, err)
	assert.Equal(t, frame.ERROR, f.Command)
	assert.Equal(t, "bad token", f.Header.Get(frame.Message))
	assert.Equal(t, "denied", string(f.Body))

	_, err = cn.receive()
	require.Error(t, err)
}

func TestConn_Send(t *testing.T) {
	client, server := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })

	cn := newConn(client)
	go func() {
		defer cn.close()
		_ = cn.send(frame.New(frame.SUBSCRIBE, frame.Id, "sub-0", frame.Destination, "/topic/wallet/7"))
	}()

	peer := newConn(server)
	f, err := peer.receive()
	require.NoError(t, err)
	assert.Equal(t, frame.SUBSCRIBE, f.Command)
	assert.Equal(t, "sub-0", f.Header.Get(frame.Id))
	assert.Equal(t, "/topic/wallet/7", f.Header.Get(frame.Destination))
}
