package nats

import (
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/stretchr/testify/assert"

	"github.com/flarexio/reportrag"
	"github.com/flarexio/reportrag/registry"
)

func errorMsg(code, description string) *nats.Msg {
	msg := nats.NewMsg("reportrag.answer")
	msg.Header.Set(micro.ErrorCodeHeader, code)
	msg.Header.Set(micro.ErrorHeader, description)
	return msg
}

func TestErrorRestoresSentinels(t *testing.T) {
	assert := assert.New(t)

	empty := fmt.Errorf("%w: collection annual_report is empty", reportrag.ErrEmptyIndex)
	err := Error(errorMsg(code(empty), empty.Error()))
	assert.ErrorIs(err, reportrag.ErrEmptyIndex)
	assert.Contains(err.Error(), "collection annual_report is empty")

	missing := fmt.Errorf("%w: doc", registry.ErrDocumentNotFound)
	err = Error(errorMsg(code(missing), missing.Error()))
	assert.ErrorIs(err, registry.ErrDocumentNotFound)

	failed := fmt.Errorf("%w: %w", reportrag.ErrGenerationFailed, fmt.Errorf("overloaded"))
	err = Error(errorMsg(code(failed), failed.Error()))
	assert.ErrorIs(err, reportrag.ErrGenerationFailed)
}

func TestErrorUnknownCode(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("417", code(fmt.Errorf("boom")))

	err := Error(errorMsg("417", ""))
	assert.EqualError(err, "417:unknown error")
	assert.NotErrorIs(err, reportrag.ErrEmptyIndex)
}

func TestErrorNoHeader(t *testing.T) {
	assert := assert.New(t)

	msg := nats.NewMsg("reportrag.answer")
	assert.NoError(Error(msg))
	assert.Error(Error(nil))
}
