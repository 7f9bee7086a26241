package output

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"spectrecon/internal/models"
)

// rawName returns the data file paired with a MetaImage header
func rawName(mhd string) string {
	return strings.TrimSuffix(mhd, filepath.Ext(mhd)) + ".raw"
}

// WriteMetaImage writes a MetaImage header at path and the pixel data as
// little-endian float32 into the sibling .raw file, with unit spacing
func WriteMetaImage(path string, img *models.Image) error {
	raw := rawName(path)

	f, err := os.Create(raw)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	pixels := make([]float32, len(img.Data))
	for i, v := range img.Data {
		pixels[i] = float32(v)
	}
	if err := binary.Write(buf, binary.LittleEndian, pixels); err != nil {
		return fmt.Errorf("error writing %s: %w", filepath.Base(raw), err)
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	header := strings.Join([]string{
		"ObjectType = Image",
		"NDims = 2",
		"BinaryData = True",
		"BinaryDataByteOrderMSB = False",
		"CompressedData = False",
		"Offset = 0 0",
		"ElementSpacing = 1 1",
		fmt.Sprintf("DimSize = %d %d", img.Cols, img.Rows),
		"ElementType = MET_FLOAT",
		"ElementDataFile = " + filepath.Base(raw),
	}, "\n") + "\n"

	return os.WriteFile(path, []byte(header), 0644)
}
