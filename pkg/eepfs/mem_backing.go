/*
Copyright 2011 Google Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package eepfs

import "avrix.dev/avrix/pkg/kerr"

// MemBacking holds the EEPROM byte image in RAM, matching a real
// device's EEPROM: fresh/erased bytes read back as 0xFF.
type MemBacking struct {
	cfg   Config
	image []byte
}

// NewMemBacking allocates a MemBacking sized for cfg, erased to 0xFF.
func NewMemBacking(cfg Config) *MemBacking {
	image := make([]byte, cfg.Rows*cfg.RowSize)
	for i := range image {
		image[i] = 0xFF
	}
	return &MemBacking{cfg: cfg, image: image}
}

func (m *MemBacking) ReadAt(buf []byte, offset int) (int, error) {
	if offset < 0 || offset+len(buf) > len(m.image) {
		return 0, kerr.ErrInvalidArg
	}
	return copy(buf, m.image[offset:offset+len(buf)]), nil
}

func (m *MemBacking) WriteAt(buf []byte, offset int) error {
	if offset < 0 || offset+len(buf) > len(m.image) {
		return kerr.ErrInvalidArg
	}
	copy(m.image[offset:offset+len(buf)], buf)
	return nil
}

func (m *MemBacking) Erase(row int) error {
	if row < 0 || row >= m.cfg.Rows {
		return kerr.ErrInvalidArg
	}
	start := row * m.cfg.RowSize
	for i := start; i < start+m.cfg.RowSize; i++ {
		m.image[i] = 0xFF
	}
	return nil
}

// Image returns the raw byte image, for tests that want to simulate a
// reboot by mounting a fresh *Log over the same bytes.
func (m *MemBacking) Image() []byte { return m.image }
