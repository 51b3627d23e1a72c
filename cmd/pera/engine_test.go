package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionCompileAndRun(t *testing.T) {
	s := newSession(false)
	var out pipedOutput
	s.machine.SetOutput(&out)

	err := s.run(`(print (+ 1 2))`)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out.String())
}

func TestSessionCompileErrorIsWrapped(t *testing.T) {
	s := newSession(false)
	_, err := s.compile(`(print nope)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile error")
}

func TestSessionRuntimeErrorIsWrapped(t *testing.T) {
	s := newSession(false)
	err := s.run(`(print (+ 1 "x"))`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime error")
}

func TestSessionPersistsGlobalsAcrossRuns(t *testing.T) {
	s := newSession(false)
	require.NoError(t, s.run(`(put _x 7)`))
	s.machine.Reset()

	var out pipedOutput
	s.machine.SetOutput(&out)
	require.NoError(t, s.run(`(print _x)`))
	assert.Equal(t, "7\n", out.String())
}

// pipedOutput is a minimal io.Writer sink for capturing PRINT output
// in tests without reaching for os.Pipe.
type pipedOutput struct {
	data []byte
}

func (p *pipedOutput) Write(b []byte) (int, error) {
	p.data = append(p.data, b...)
	return len(b), nil
}

func (p *pipedOutput) String() string { return string(p.data) }
