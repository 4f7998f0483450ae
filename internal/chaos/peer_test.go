package chaos

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlowWriterEventuallyDeliversFullResponse(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		_ = New(server).SlowWriter()
	}()

	_, err := client.Write([]byte("OPTIONS rtsp://x/ RTSP/1.0\r\nCSeq: 1\r\n\r\n"))
	require.NoError(t, err)

	r := bufio.NewReader(client)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "200 OK")
}

func TestDropMidHandshakeClosesAfterRequest(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		_ = New(server).DropMidHandshake()
	}()

	_, err := client.Write([]byte("OPTIONS rtsp://x/ RTSP/1.0\r\nCSeq: 1\r\n\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = client.Read(buf)
	assert.Error(t, err)
}

func TestDigestChallengerNeverAccepts(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		_ = New(server).DigestChallenger()
	}()

	r := bufio.NewReader(client)
	for i := 0; i < 2; i++ {
		_, err := client.Write([]byte("DESCRIBE rtsp://x/ RTSP/1.0\r\nCSeq: 1\r\n\r\n"))
		require.NoError(t, err)
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Contains(t, line, "401")
		// drain remaining header lines up to the blank line
		for {
			l, err := r.ReadString('\n')
			require.NoError(t, err)
			if l == "\r\n" {
				break
			}
		}
	}
}
