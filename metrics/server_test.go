package metrics

import (
	"io/ioutil"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distributedio/hiredis/conf"
)

func TestServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := NewServer(&conf.Status{Listen: lis.Addr().String()})
	assert.NotNil(t, server)
	served := make(chan error, 1)
	go func() { served <- server.Serve(lis) }()

	resp, err := http.Get("http://" + lis.Addr().String() + "/hiredis/metrics")
	require.NoError(t, err)
	body, err := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	assert.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "hiredis_pending_replies"))

	err = server.GracefulStop()
	assert.NoError(t, err)
	assert.NoError(t, <-served)
}

func TestStop(t *testing.T) {
	server := NewServer(&conf.Status{Listen: "127.0.0.1:0"})
	assert.NotNil(t, server)
	assert.NoError(t, server.Stop())
}
