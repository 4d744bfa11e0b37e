package upload

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"medstore/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	pdfHeader = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "/uploads")
	require.NoError(t, err)
	return s
}

func TestSaveDetectsTypeFromContent(t *testing.T) {
	s := newTestStore(t)

	f, err := s.Save(ProductImage, bytes.NewReader(pngHeader))
	require.NoError(t, err)

	assert.Equal(t, "image/png", f.ContentType)
	assert.True(t, strings.HasSuffix(f.Name, ".png"))
	assert.Equal(t, "/uploads/products/"+f.Name, f.URL)

	stored, err := os.ReadFile(filepath.Join(s.Root(), "products", f.Name))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, stored)
}

func TestSaveRejectsDisallowedContent(t *testing.T) {
	s := newTestStore(t)

	// content decides, whatever the client calls the file
	_, err := s.Save(ProductImage, strings.NewReader("#!/bin/sh\nrm -rf /\n"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = s.Save(ProductImage, bytes.NewReader(pdfHeader))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "products"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPaymentProofAcceptsPDF(t *testing.T) {
	s := newTestStore(t)

	f, err := s.Save(PaymentProof, bytes.NewReader(pdfHeader))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", f.ContentType)
	assert.True(t, strings.HasPrefix(f.URL, "/uploads/payment-proofs/"))

	require.NoError(t, s.Remove(f))
	_, err = os.Stat(filepath.Join(s.Root(), "payment-proofs", f.Name))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Remove(f))
}

func TestRemoveByName(t *testing.T) {
	s := newTestStore(t)

	f, err := s.Save(PaymentProof, bytes.NewReader(pngHeader))
	require.NoError(t, err)

	outside := filepath.Join(s.Root(), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0o644))

	// traversal collapses to a name inside payment-proofs, which does not exist
	assert.NoError(t, s.RemoveByName(PaymentProof, "../keep.txt"))
	_, err = os.Stat(outside)
	assert.NoError(t, err)

	assert.ErrorIs(t, s.RemoveByName(PaymentProof, ".."), models.ErrInvalidInput)

	require.NoError(t, s.RemoveByName(PaymentProof, f.Name))
	_, err = os.Stat(filepath.Join(s.Root(), "payment-proofs", f.Name))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.RemoveByName(PaymentProof, f.Name))
}

func TestSaveSizeLimits(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Save(ProductImage, bytes.NewReader(nil))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	big := make([]byte, MaxFileSize+1)
	copy(big, pngHeader)
	_, err = s.Save(ProductImage, bytes.NewReader(big))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
