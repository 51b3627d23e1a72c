package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParenBalanceTracksDepth(t *testing.T) {
	assert.Equal(t, 0, parenBalance(`(print 1)`))
	assert.Equal(t, 1, parenBalance(`(do`))
	assert.Equal(t, 2, parenBalance(`(do (print 1`))
	assert.Equal(t, 0, parenBalance(``))
}

func TestParenBalanceIgnoresParensInsideStrings(t *testing.T) {
	assert.Equal(t, 0, parenBalance(`(print "(")`))
	assert.Equal(t, 0, parenBalance(`(print ")(")`))
}

func TestParenBalanceHandlesEscapedQuotes(t *testing.T) {
	// The closing quote of "a\"b" is escaped, so the real closing quote
	// (and the form's own close-paren) come after it.
	assert.Equal(t, 0, parenBalance(`(print "a\"b")`))
}
