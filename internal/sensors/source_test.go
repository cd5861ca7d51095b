package sensors

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoints(t *testing.T) {
	eps := Endpoints("0.0.0.0", []int{1231, 1232}, 10*time.Millisecond)
	require.Len(t, eps, 2)
	assert.Equal(t, Endpoint{Sensor: 1, Address: "0.0.0.0", Port: 1232, Timeout: 10 * time.Millisecond}, eps[1])
	assert.Equal(t, "sensor 1 (port 1232)", eps[1].String())
}

func TestTryReceiveResults(t *testing.T) {
	factory := NewMockUDPSocketFactory(1233)
	sock := factory.Sockets[1233]
	sock.Push("1,2,3")
	sock.PushTimeout()
	sock.PushError(errors.New("connection refused"))

	src, err := Listen(factory, Endpoint{Sensor: 0, Address: "0.0.0.0", Port: 1233, Timeout: time.Second})
	require.NoError(t, err)

	before := time.Now()
	res := src.TryReceive()
	require.Equal(t, Data, res.Status)
	assert.Equal(t, []byte("1,2,3"), res.Frame.Payload)
	assert.Equal(t, 0, res.Frame.Sensor)
	assert.NotNil(t, res.Frame.From)
	assert.WithinDuration(t, before.Add(time.Second), sock.ReadDeadline(), 500*time.Millisecond)

	res = src.TryReceive()
	assert.Equal(t, NoData, res.Status)
	assert.NoError(t, res.Err)

	res = src.TryReceive()
	require.Equal(t, Failed, res.Status)
	var te *TransportError
	require.ErrorAs(t, res.Err, &te)
	assert.Equal(t, 1233, te.Port)
	assert.Contains(t, res.Err.Error(), "connection refused")

	// Drained queue reads as a timeout.
	assert.Equal(t, NoData, src.TryReceive().Status)
}

func TestTryReceiveAfterClose(t *testing.T) {
	factory := NewMockUDPSocketFactory(1231)
	src, err := Listen(factory, Endpoint{Port: 1231, Timeout: time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, src.Close())
	res := src.TryReceive()
	require.Equal(t, Failed, res.Status)
	assert.ErrorIs(t, res.Err, net.ErrClosed)
}

func TestListenAllClosesOnBindFailure(t *testing.T) {
	factory := NewMockUDPSocketFactory(1231, 1232, 1233, 1234)
	factory.Errors[1233] = errors.New("address already in use")

	_, err := ListenAll(factory, Endpoints("0.0.0.0", []int{1231, 1232, 1233, 1234}, time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind udp 0.0.0.0:1233")
	assert.Contains(t, err.Error(), "address already in use")

	assert.True(t, factory.Sockets[1231].Closed())
	assert.True(t, factory.Sockets[1232].Closed())
	assert.False(t, factory.Sockets[1234].Closed(), "never bound")
	assert.Len(t, factory.Calls, 3)
}

func TestListenRejectsBadAddress(t *testing.T) {
	_, err := Listen(NewMockUDPSocketFactory(1), Endpoint{Address: "not-an-ip", Port: 1})
	require.Error(t, err)
}

func TestRealSocketLoopback(t *testing.T) {
	src, err := Listen(RealUDPSocketFactory{}, Endpoint{Sensor: 2, Address: "127.0.0.1", Port: 0, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	port := src.Endpoint().Port
	require.NotZero(t, port)

	// Silent socket: bounded wait, no failure.
	start := time.Now()
	assert.Equal(t, NoData, src.TryReceive().Status)
	assert.Less(t, time.Since(start), time.Second)

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("10,0,0"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res := src.TryReceive()
		if res.Status != Data {
			return false
		}
		return string(res.Frame.Payload) == "10,0,0" && res.Frame.Sensor == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRealSocketBindConflict(t *testing.T) {
	first, err := Listen(RealUDPSocketFactory{}, Endpoint{Address: "127.0.0.1", Port: 0, Timeout: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { first.Close() })

	_, err = Listen(RealUDPSocketFactory{}, Endpoint{Address: "127.0.0.1", Port: first.Endpoint().Port, Timeout: time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind udp")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "no data", NoData.String())
	assert.Equal(t, "data", Data.String())
	assert.Equal(t, "failed", Failed.String())
}
