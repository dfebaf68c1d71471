// Copyright 2025 fret project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package kernimage

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/SunilChowdary1909/FRET/pkg/trace"
)

// BuildOrReadBlocks returns the image's block table, disassembling at
// most once per image: the result is cached in the workdir keyed by
// the binary's content hash.
func (k *KernelImage) BuildOrReadBlocks() ([]trace.Block, string, error) {
	hsh, err := binaryHash(k.image)
	if err != nil {
		return nil, "", err
	}
	absPath := filepath.Join(k.workdir, "blocks-"+hex.EncodeToString(hsh))
	if _, err := os.Stat(absPath); err == nil {
		blocks, err := ReadBlocks(absPath)
		if err != nil {
			return nil, "", err
		}
		k.blocks = blocks
		k.byStart = make(map[uint64]int, len(blocks))
		for i := range blocks {
			k.byStart[blocks[i].Start] = i
		}
		return blocks, absPath, nil
	}
	if err := k.extractBlocks(); err != nil {
		return nil, "", err
	}
	if err := WriteBlocks(absPath, k.blocks); err != nil {
		return nil, "", err
	}
	return k.blocks, absPath, nil
}

func ReadBlocks(path string) ([]trace.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var blocks []trace.Block
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

func WriteBlocks(path string, blocks []trace.Block) error {
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(blocks); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if _, err := buf.WriteTo(w); err != nil {
		return err
	}
	return w.Flush()
}

func binaryHash(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
