package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSerialize(t *testing.T) {
	req := Request{
		Method: Describe,
		URI:    "rtsp://test.com",
		Headers: []Header{
			{Name: "CSeq", Value: "1"},
			{Name: "User-Agent", Value: "test"},
		},
		Body: []byte("test"),
	}
	buf := make([]byte, 128)
	n, err := req.Serialize(buf)
	require.NoError(t, err)
	assert.Equal(t,
		"DESCRIBE rtsp://test.com RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: test\r\nContent-Length: 4\r\n\r\ntest",
		string(buf[:n]))
}

func TestRequestSerializeNoBody(t *testing.T) {
	req := Request{
		Method:  Options,
		URI:     "rtsp://test.com",
		Headers: []Header{{Name: "CSeq", Value: "1"}},
	}
	buf := make([]byte, 64)
	n, err := req.Serialize(buf)
	require.NoError(t, err)
	assert.Equal(t, "OPTIONS rtsp://test.com RTSP/1.0\r\nCSeq: 1\r\n\r\n", string(buf[:n]))
}

func TestRequestSerializeBufferTooSmall(t *testing.T) {
	req := Request{
		Method:  Describe,
		URI:     "rtsp://test.com",
		Headers: []Header{{Name: "CSeq", Value: "1"}},
		Body:    []byte("test"),
	}
	buf := make([]byte, 10)
	_, err := req.Serialize(buf)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}
