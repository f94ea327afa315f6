package fsevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventTypeDeduction(t *testing.T) {
	assert.Equal(t, TypeFile, ItemIsFile.Type())
	assert.Equal(t, TypeDir, ItemIsDir.Type())
	assert.Equal(t, TypeSymlink, ItemIsSymlink.Type())
	assert.Equal(t, TypeHardlink, ItemIsHardlink.Type())
	assert.Equal(t, TypeHardlink, ItemIsLastHardlink.Type())
	assert.Equal(t, TypeUnknown, None.Type())
}

func TestScanTypeRootChangedAndHistoryDone(t *testing.T) {
	assert.Equal(t, ScanReScan, RootChanged.Scan())
	assert.Equal(t, ScanNop, HistoryDone.Scan())
	assert.Equal(t, ScanNop, EventIdsWrapped.Scan())
}

func TestScanTypeCreatedRemovedModified(t *testing.T) {
	assert.Equal(t, ScanSingleNode, (ItemCreated | ItemIsFile).Scan())
	assert.Equal(t, ScanFolder, (ItemRemoved | ItemIsDir).Scan())
	assert.Equal(t, ScanSingleNode, (ItemRemoved | ItemIsFile).Scan())
	assert.Equal(t, ScanSingleNode, (ItemModified | ItemIsFile).Scan())
}

func TestScanTypeMustScanSubDirs(t *testing.T) {
	assert.Equal(t, ScanFolder, (MustScanSubDirs | ItemIsDir).Scan())
}

func TestRootChangedOutranksTypeBits(t *testing.T) {
	assert.Equal(t, ScanReScan, (RootChanged | ItemIsFile).Scan())
}
