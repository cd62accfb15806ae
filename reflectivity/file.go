package reflectivity

import (
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"row-major/thickmirror/wirehdr"
)

const (
	fieldLayoutVersion = 1
	fieldEnergyN       = 2
	fieldAngleN        = 3
	fieldEnergyStart   = 4
	fieldEnergyFinal   = 5
	fieldEnergyScale   = 6
	fieldAngleStart    = 7
	fieldAngleFinal    = 8
	fieldAngleScale    = 9
)

const maxBins = 1 << 26

func Read(in io.Reader) (*Table, error) {
	hdr, err := wirehdr.Read(in)
	if err != nil {
		return nil, fmt.Errorf("while reading header: %w", err)
	}

	if hdr.Uint(fieldLayoutVersion) != 1 {
		return nil, fmt.Errorf("bad data layout version: %v", hdr.Uint(fieldLayoutVersion))
	}

	ne, na := hdr.Uint(fieldEnergyN), hdr.Uint(fieldAngleN)
	if ne > maxBins || na > maxBins || ne*na > maxBins {
		return nil, fmt.Errorf("bad table size %d x %d", na, ne)
	}

	energy, err := NewAxis(hdr.Float(fieldEnergyStart), hdr.Float(fieldEnergyFinal), int(ne), Scale(hdr.Uint(fieldEnergyScale)))
	if err != nil {
		return nil, fmt.Errorf("while reading energy axis: %w", err)
	}
	angle, err := NewAxis(hdr.Float(fieldAngleStart), hdr.Float(fieldAngleFinal), int(na), Scale(hdr.Uint(fieldAngleScale)))
	if err != nil {
		return nil, fmt.Errorf("while reading angle axis: %w", err)
	}

	t := NewTable(energy, angle)

	zipReader, err := zlib.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("while opening zip reader: %w", err)
	}
	defer zipReader.Close()

	if err := binary.Read(zipReader, binary.LittleEndian, t.Data); err != nil {
		return nil, fmt.Errorf("while reading coefficients: %w", err)
	}

	return t, nil
}

func ReadFile(name string) (*Table, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("while opening file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

func Write(t *Table, w io.Writer) error {
	hdr := &wirehdr.Builder{}
	hdr.Uint(fieldLayoutVersion, 1)
	hdr.Uint(fieldEnergyN, uint64(t.Energy.N))
	hdr.Uint(fieldAngleN, uint64(t.Angle.N))
	hdr.Float(fieldEnergyStart, t.Energy.Start)
	hdr.Float(fieldEnergyFinal, t.Energy.Final)
	hdr.Uint(fieldEnergyScale, uint64(t.Energy.Scale))
	hdr.Float(fieldAngleStart, t.Angle.Start)
	hdr.Float(fieldAngleFinal, t.Angle.Final)
	hdr.Uint(fieldAngleScale, uint64(t.Angle.Scale))

	if err := wirehdr.Write(w, hdr.Bytes()); err != nil {
		return err
	}

	zipWriter := zlib.NewWriter(w)

	if err := binary.Write(zipWriter, binary.LittleEndian, t.Data); err != nil {
		return fmt.Errorf("while writing coefficients: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("while closing zip writer: %w", err)
	}

	return nil
}

func WriteFile(t *Table, name string) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("while creating file: %w", err)
	}

	if err := Write(t, f); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("while closing file: %w", err)
	}
	return nil
}
