package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

func TestContextRequestAccessors(t *testing.T) {
	req := &http11.Request{
		Method:     "POST",
		Path:       "/files/a.txt",
		Query:      "mode=append&x=1",
		Header:     map[string]string{"user-agent": "curl/8"},
		Body:       []byte(`{"name":"riptide"}`),
		Text:       `{"name":"riptide"}`,
		Params:     map[string]string{"filename": "a.txt"},
		RemoteAddr: "10.0.0.1:1234",
	}
	c := NewContext(req, http11.NewResponse())

	assert.Equal(t, "POST", c.Method())
	assert.Equal(t, "/files/a.txt", c.Path())
	assert.Equal(t, "a.txt", c.Param("filename"))
	assert.Equal(t, "append", c.Query("mode"))
	assert.Equal(t, "", c.Query("missing"))
	assert.Equal(t, "curl/8", c.GetHeader("User-Agent"))
	assert.Equal(t, "10.0.0.1:1234", c.RemoteAddr())
	assert.NotNil(t, c.Context())

	var body struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.BindJSON(&body))
	assert.Equal(t, "riptide", body.Name)
}

func TestContextBindJSONErrors(t *testing.T) {
	c := NewContext(&http11.Request{}, http11.NewResponse())
	var v map[string]any
	assert.ErrorIs(t, c.BindJSON(&v), ErrBadRequest)

	c = NewContext(&http11.Request{Body: []byte("{nope")}, http11.NewResponse())
	assert.ErrorIs(t, c.BindJSON(&v), ErrBadRequest)
}

func TestContextWriters(t *testing.T) {
	res := http11.NewResponse()
	c := NewContext(&http11.Request{}, res)
	assert.False(t, c.Written())

	require.NoError(t, c.JSON(http11.StatusCreated, map[string]int{"n": 1}))
	assert.True(t, c.Written())
	assert.Equal(t, http11.StatusCreated, c.StatusCode())
	assert.Equal(t, http11.MIMEApplicationJSON, res.Header.Get("Content-Type"))
	assert.Equal(t, `{"n":1}`, string(res.Body))

	require.NoError(t, c.Bytes(http11.StatusOK, "application/octet-stream", []byte{1, 2}))
	assert.Equal(t, "application/octet-stream", c.ResponseHeader("content-type"))

	require.NoError(t, c.NoContent(http11.StatusNoContent))
	assert.Empty(t, res.Body)

	c.SetHeader("X-Trace", "1")
	assert.Equal(t, "1", res.Header.Get("x-trace"))
}

func TestContextStore(t *testing.T) {
	c := NewContext(&http11.Request{}, http11.NewResponse())
	c.Set("user", "alice")

	assert.Equal(t, "alice", c.Get("user"))
	assert.Equal(t, "alice", c.MustGet("user"))
	_, ok := c.Lookup("missing")
	assert.False(t, ok)
	assert.Panics(t, func() { c.MustGet("missing") })
}

func TestContextPoolReleaseClears(t *testing.T) {
	pool := NewContextPool()
	c := pool.Acquire()
	c.reset(&http11.Request{}, http11.NewResponse())
	c.Set("k", 1)
	pool.Release(c)

	assert.Nil(t, c.Request())
	assert.Nil(t, c.Get("k"))
	assert.Equal(t, StateIdle, c.ChainState())
}
