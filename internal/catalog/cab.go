package catalog

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
)

// Minimal reader for the cabinet container the reference host publishes
// catalogs in. Supports single-cabinet files with uncompressed or MSZIP
// folders, which covers every catalog variant observed upstream.

const (
	cabSignature = "MSCF"

	cabCompressNone  = 0x0000
	cabCompressMSZIP = 0x0001
	cabCompressMask  = 0x000f

	cabFlagReservePresent = 0x0004

	cabHeaderSize = 36
	cabFolderSize = 8
	cabDataSize   = 8

	// MSZIP keeps the deflate window across blocks of one folder.
	mszipWindowSize = 32 * 1024
)

type cabFolder struct {
	dataOffset uint32
	dataCount  uint16
	compress   uint16
}

type cabFile struct {
	name        string
	size        uint32
	folderStart uint32
	folderIndex uint16
}

// IsCab reports whether data starts with the cabinet signature.
func IsCab(data []byte) bool {
	return len(data) >= len(cabSignature) && string(data[:len(cabSignature)]) == cabSignature
}

// extractCab returns the cabinet's files keyed by name.
func extractCab(data []byte) (map[string][]byte, error) {
	if len(data) < cabHeaderSize || !IsCab(data) {
		return nil, fmt.Errorf("not a cabinet file")
	}

	coffFiles := binary.LittleEndian.Uint32(data[16:20])
	folderCount := binary.LittleEndian.Uint16(data[26:28])
	fileCount := binary.LittleEndian.Uint16(data[28:30])
	flags := binary.LittleEndian.Uint16(data[30:32])

	offset := cabHeaderSize
	var folderReserve, dataReserve int

	if flags&cabFlagReservePresent != 0 {
		if len(data) < offset+4 {
			return nil, fmt.Errorf("truncated cabinet reserve area")
		}
		headerReserve := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		folderReserve = int(data[offset+2])
		dataReserve = int(data[offset+3])
		offset += 4 + headerReserve
	}

	folders := make([]cabFolder, 0, folderCount)
	for i := 0; i < int(folderCount); i++ {
		if len(data) < offset+cabFolderSize {
			return nil, fmt.Errorf("truncated cabinet folder table")
		}
		folders = append(folders, cabFolder{
			dataOffset: binary.LittleEndian.Uint32(data[offset : offset+4]),
			dataCount:  binary.LittleEndian.Uint16(data[offset+4 : offset+6]),
			compress:   binary.LittleEndian.Uint16(data[offset+6 : offset+8]),
		})
		offset += cabFolderSize + folderReserve
	}

	files, err := readCabFiles(data, int(coffFiles), int(fileCount))
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(files))
	decoded := make(map[uint16][]byte, len(folders))

	for _, f := range files {
		if int(f.folderIndex) >= len(folders) {
			return nil, fmt.Errorf("file %s references folder %d of %d", f.name, f.folderIndex, len(folders))
		}

		content, ok := decoded[f.folderIndex]
		if !ok {
			content, err = decodeCabFolder(data, folders[f.folderIndex], dataReserve)
			if err != nil {
				return nil, fmt.Errorf("cannot decode folder %d: %w", f.folderIndex, err)
			}
			decoded[f.folderIndex] = content
		}

		end := int(f.folderStart) + int(f.size)
		if end > len(content) {
			return nil, fmt.Errorf("file %s exceeds folder data", f.name)
		}
		out[f.name] = content[f.folderStart:end]
	}

	return out, nil
}

func readCabFiles(data []byte, offset, count int) ([]cabFile, error) {
	files := make([]cabFile, 0, count)

	for i := 0; i < count; i++ {
		if len(data) < offset+16 {
			return nil, fmt.Errorf("truncated cabinet file table")
		}

		f := cabFile{
			size:        binary.LittleEndian.Uint32(data[offset : offset+4]),
			folderStart: binary.LittleEndian.Uint32(data[offset+4 : offset+8]),
			folderIndex: binary.LittleEndian.Uint16(data[offset+8 : offset+10]),
		}
		offset += 16

		end := bytes.IndexByte(data[offset:], 0)
		if end < 0 {
			return nil, fmt.Errorf("unterminated cabinet file name")
		}
		f.name = string(data[offset : offset+end])
		offset += end + 1

		files = append(files, f)
	}

	return files, nil
}

func decodeCabFolder(data []byte, folder cabFolder, dataReserve int) ([]byte, error) {
	var out bytes.Buffer

	offset := int(folder.dataOffset)
	compress := folder.compress & cabCompressMask

	for i := 0; i < int(folder.dataCount); i++ {
		if len(data) < offset+cabDataSize {
			return nil, fmt.Errorf("truncated data block header")
		}

		blockSize := int(binary.LittleEndian.Uint16(data[offset+4 : offset+6]))
		uncompSize := int(binary.LittleEndian.Uint16(data[offset+6 : offset+8]))
		offset += cabDataSize + dataReserve

		if len(data) < offset+blockSize {
			return nil, fmt.Errorf("truncated data block")
		}
		block := data[offset : offset+blockSize]
		offset += blockSize

		switch compress {
		case cabCompressNone:
			out.Write(block)

		case cabCompressMSZIP:
			if blockSize < 2 || block[0] != 'C' || block[1] != 'K' {
				return nil, fmt.Errorf("bad mszip block signature")
			}

			dict := out.Bytes()
			if len(dict) > mszipWindowSize {
				dict = dict[len(dict)-mszipWindowSize:]
			}

			fr := flate.NewReaderDict(bytes.NewReader(block[2:]), dict)
			chunk, err := io.ReadAll(fr)
			fr.Close()
			if err != nil {
				return nil, fmt.Errorf("mszip inflate: %w", err)
			}
			if len(chunk) != uncompSize {
				return nil, fmt.Errorf("mszip block size mismatch: got %d want %d", len(chunk), uncompSize)
			}
			out.Write(chunk)

		default:
			return nil, fmt.Errorf("unsupported cabinet compression 0x%04x", compress)
		}
	}

	return out.Bytes(), nil
}
