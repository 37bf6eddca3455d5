package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaperKeySanitizesFilename(t *testing.T) {
	key := PaperKey("../My Paper (final).PDF")

	assert.True(t, strings.HasPrefix(key, FolderPapers+"/"))
	assert.True(t, strings.HasSuffix(key, "/My_Paper_final_.PDF"))
	assert.True(t, ValidPaperKey(key))
}

func TestValidPaperKeyRejectsForeignKeys(t *testing.T) {
	assert.False(t, ValidPaperKey("recordings/x/y.mp4"))
	assert.False(t, ValidPaperKey("papers/not-a-uuid/file.pdf"))
	assert.False(t, ValidPaperKey(""))
}

func TestPaperContentType(t *testing.T) {
	ct, ok := PaperContentType("draft.Pdf")
	assert.True(t, ok)
	assert.Equal(t, "application/pdf", ct)

	_, ok = PaperContentType("slides.pptx")
	assert.False(t, ok)
}
