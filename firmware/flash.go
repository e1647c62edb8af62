//go:build tinygo

package main

import (
	"machine"

	"github.com/not-forest/osu-taiko-drum/pkg/config"
)

// configPage backs the config store with the last erase block of the
// on-chip flash, mirroring the linker-reserved page layout of the original
// board. The erase/write sequence runs only from the command processor path
// between sampling cycles.
type configPage struct {
	offset int64
	block  int64
}

func newConfigPage() *configPage {
	blockSize := machine.Flash.EraseBlockSize()
	last := machine.Flash.Size()/blockSize - 1
	return &configPage{
		offset: last * blockSize,
		block:  last,
	}
}

func (p *configPage) Erase() error {
	return machine.Flash.EraseBlocks(p.block, 1)
}

func (p *configPage) Write(data []byte) error {
	// Pad to the flash write granularity with erased bytes.
	ws := int(machine.Flash.WriteBlockSize())
	padded := make([]byte, ((len(data)+ws-1)/ws)*ws)
	for i := range padded {
		padded[i] = 0xFF
	}
	copy(padded, data)

	_, err := machine.Flash.WriteAt(padded, p.offset)
	return err
}

func (p *configPage) Read(data []byte) error {
	_, err := machine.Flash.ReadAt(data, p.offset)
	return err
}

var _ config.Flash = (*configPage)(nil)
