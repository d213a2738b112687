// Copyright 2026 The Rockshrew Authors
// This file is part of rockshrew-go.
//
// rockshrew-go is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// rockshrew-go is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with rockshrew-go. If not, see <http://www.gnu.org/licenses/>.

package kv

import "encoding/binary"

// stateKey builds the physical TblState key for a logical user key at a
// given height: len(key):u32-LE ‖ key ‖ height:u32-BE. The big-endian
// height suffix is what lets a reverse MDBX cursor from stateKey(key, h)
// land directly on the greatest version <= the target height.
func stateKey(userKey []byte, height uint32) []byte {
	out := make([]byte, 4+len(userKey)+4)
	binary.LittleEndian.PutUint32(out[:4], uint32(len(userKey)))
	copy(out[4:4+len(userKey)], userKey)
	binary.BigEndian.PutUint32(out[4+len(userKey):], height)
	return out
}

// statePrefix is the shared prefix of every version of userKey: all
// versions sort contiguously under it because the BE height suffix comes
// last.
func statePrefix(userKey []byte) []byte {
	out := make([]byte, 4+len(userKey))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(userKey)))
	copy(out[4:], userKey)
	return out
}

// splitStateKey recovers (userKey, height) from a raw TblState key. It
// assumes the first 4 bytes are the LE key length exactly as written by
// stateKey/statePrefix.
func splitStateKey(raw []byte) (userKey []byte, height uint32, ok bool) {
	if len(raw) < 8 {
		return nil, 0, false
	}
	klen := binary.LittleEndian.Uint32(raw[:4])
	if uint64(4+klen+4) != uint64(len(raw)) {
		return nil, 0, false
	}
	userKey = raw[4 : 4+klen]
	height = binary.BigEndian.Uint32(raw[4+klen:])
	return userKey, height, true
}

// updatesKey builds the TblUpdates key for the keyID-th key touched at
// height: height:u32-BE ‖ key-id:u32-LE. The BE height prefix groups all
// keys touched at the same height contiguously, which is what rollback
// scans.
func updatesKey(height uint32, keyID uint32) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint32(out[:4], height)
	binary.LittleEndian.PutUint32(out[4:], keyID)
	return out
}

// updatesHeightPrefix is the shared prefix of every updates row recorded
// at height h.
func updatesHeightPrefix(height uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, height)
	return out
}

func splitUpdatesKey(raw []byte) (height uint32, keyID uint32, ok bool) {
	if len(raw) != 8 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint32(raw[:4]), binary.LittleEndian.Uint32(raw[4:]), true
}

func encodeHeight(h uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, h)
	return out
}

func decodeHeight(raw []byte) (uint32, bool) {
	if len(raw) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(raw), true
}
