package fsevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldRescanOnReScan(t *testing.T) {
	e := FsEvent{Path: "/mnt/data", Flag: RootChanged}
	assert.True(t, e.ShouldRescan("/mnt/data"))
	assert.True(t, e.ShouldRescan("/other/root"))
}

func TestShouldRescanOnRootPathMatch(t *testing.T) {
	e := FsEvent{Path: "/mnt/data", Flag: ItemIsDir | ItemModified}
	assert.True(t, e.ShouldRescan("/mnt/data"))
}

func TestShouldNotRescanForNonRootPath(t *testing.T) {
	e := FsEvent{Path: "/mnt/data/sub/file.txt", Flag: ItemIsFile | ItemCreated}
	assert.False(t, e.ShouldRescan("/mnt/data"))
}

func TestShouldNotRescanOnNop(t *testing.T) {
	e := FsEvent{Path: "/mnt/data", Flag: HistoryDone}
	assert.False(t, e.ShouldRescan("/mnt/data"))
}
