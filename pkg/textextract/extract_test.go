package textextract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_TXT(t *testing.T) {
	data := []byte("  hello world.\nsecond line  \n")
	got, err := Extract(bytes.NewReader(data), int64(len(data)), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "hello world.\nsecond line", got.Content)
	assert.Equal(t, "txt", got.Metadata["type"])
}

func TestExtract_TXTInvalidUTF8(t *testing.T) {
	data := []byte{'o', 'k', 0xff, 0xfe}
	_, err := Extract(bytes.NewReader(data), int64(len(data)), ".txt")
	assert.ErrorIs(t, err, ErrInvalidText)
}

func TestExtract_Unsupported(t *testing.T) {
	_, err := Extract(bytes.NewReader(nil), 0, ".exe")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestExtract_DOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>First</w:t></w:r><w:r><w:t xml:space="preserve"> paragraph.</w:t></w:r></w:p>
<w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>
</w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	data := buf.Bytes()
	got, err := Extract(bytes.NewReader(data), int64(len(data)), "docx")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", got.Content)
}

func TestTypeFromFilename(t *testing.T) {
	assert.Equal(t, ".pdf", TypeFromFilename("Report.PDF"))
	assert.Equal(t, ".txt", TypeFromFilename("notes.txt"))
	assert.Equal(t, "", TypeFromFilename("image.png"))
}
