//go:build cgo

package fastembed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRejectsUnknownModel(t *testing.T) {
	_, err := New(Config{Model: "not-a-model"})
	assert.ErrorContains(t, err, "unsupported model")
}
