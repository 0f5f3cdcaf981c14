package zip

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	mod := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := Write(&buf, []Entry{
		Bytes("ticket.json", mod, []byte(`{"supportTicketId":"SUP-1"}`)),
		Bytes("/logs/app.log", mod, []byte("line 1\n")),
	})
	require.NoError(t, err)

	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, r.File, 2)
	assert.Equal(t, "ticket.json", r.File[0].Name)
	assert.Equal(t, "logs/app.log", r.File[1].Name)

	f, err := r.File[1].Open()
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "line 1\n", string(data))
}

func TestWriteRejectsEscapingNames(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []Entry{Bytes("../evil", time.Now(), nil)})
	assert.Error(t, err)
}

func TestWriteOpenFailure(t *testing.T) {
	boom := errors.New("boom")
	var buf bytes.Buffer
	err := Write(&buf, []Entry{{
		Name: "missing.log",
		Open: func() (io.ReadCloser, error) { return nil, boom },
	}})
	assert.ErrorIs(t, err, boom)
}
