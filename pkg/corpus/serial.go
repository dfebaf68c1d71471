// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"encoding/binary"
	"fmt"

	"github.com/SunilChowdary1909/FRET/prog"
)

const (
	entryMagic   = "FCEN"
	entryVersion = 1
)

// Serialize encodes an entry for the on-disk corpus. Ids are local to
// a corpus instance and not part of the wire form.
func (e *Entry) Serialize() []byte {
	input := e.Input.Serialize()
	b := make([]byte, 0, 64+len(input)+16*len(e.Summary.Path))
	b = append(b, entryMagic...)
	b = append(b, entryVersion)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(input)))
	b = append(b, input...)
	b = binary.LittleEndian.AppendUint32(b, uint32(e.Summary.Intervals))
	b = binary.LittleEndian.AppendUint64(b, e.Summary.PathHash)
	b = binary.LittleEndian.AppendUint64(b, e.Summary.WorstResponse)
	b = binary.LittleEndian.AppendUint64(b, e.Summary.ExecTicks)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(e.Summary.Path)))
	for _, pt := range e.Summary.Path {
		b = binary.LittleEndian.AppendUint64(b, pt.Node)
		b = binary.LittleEndian.AppendUint64(b, pt.Tick)
	}
	b = binary.LittleEndian.AppendUint64(b, e.Generation)
	return b
}

func DeserializeEntry(data []byte) (*Entry, error) {
	if len(data) < 5 || string(data[:4]) != entryMagic {
		return nil, fmt.Errorf("corpus: bad entry magic")
	}
	if data[4] != entryVersion {
		return nil, fmt.Errorf("corpus: unsupported entry version %d", data[4])
	}
	data = data[5:]
	if len(data) < 4 {
		return nil, fmt.Errorf("corpus: truncated entry")
	}
	n := int(binary.LittleEndian.Uint32(data))
	data = data[4:]
	if len(data) < n {
		return nil, fmt.Errorf("corpus: truncated entry input")
	}
	input, err := prog.Deserialize(data[:n])
	if err != nil {
		return nil, fmt.Errorf("corpus: %w", err)
	}
	data = data[n:]
	if len(data) < 4+8+8+8+4 {
		return nil, fmt.Errorf("corpus: truncated entry summary")
	}
	e := &Entry{Input: input, Parent: -1}
	e.Summary.Intervals = int(binary.LittleEndian.Uint32(data))
	e.Summary.PathHash = binary.LittleEndian.Uint64(data[4:])
	e.Summary.WorstResponse = binary.LittleEndian.Uint64(data[12:])
	e.Summary.ExecTicks = binary.LittleEndian.Uint64(data[20:])
	npts := int(binary.LittleEndian.Uint32(data[28:]))
	data = data[32:]
	if len(data) < 16*npts+8 {
		return nil, fmt.Errorf("corpus: truncated entry path")
	}
	for i := 0; i < npts; i++ {
		e.Summary.Path = append(e.Summary.Path, PathPoint{
			Node: binary.LittleEndian.Uint64(data[i*16:]),
			Tick: binary.LittleEndian.Uint64(data[i*16+8:]),
		})
	}
	data = data[16*npts:]
	e.Generation = binary.LittleEndian.Uint64(data)
	return e, nil
}
