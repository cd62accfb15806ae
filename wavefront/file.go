package wavefront

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
	fieldXN            = 3
	fieldZN            = 4
	fieldEnergyStart   = 5
	fieldEnergyStep    = 6
	fieldXStart        = 7
	fieldXStep         = 8
	fieldZStart        = 9
	fieldZStep         = 10
	fieldRadiusX       = 11
	fieldRadiusZ       = 12
	fieldCenterX       = 13
	fieldCenterZ       = 14
)

// maxSamples bounds the allocation made for a corrupt header.
const maxSamples = 1 << 30

func Read(in io.Reader) (*Wavefront, error) {
	hdr, err := wirehdr.Read(in)
	if err != nil {
		return nil, fmt.Errorf("while reading header: %w", err)
	}

	if hdr.Uint(fieldLayoutVersion) != 1 {
		return nil, fmt.Errorf("bad data layout version: %v", hdr.Uint(fieldLayoutVersion))
	}

	ne, nx, nz := hdr.Uint(fieldEnergyN), hdr.Uint(fieldXN), hdr.Uint(fieldZN)
	if ne == 0 || nx == 0 || nz == 0 || ne > maxSamples || nx > maxSamples || nz > maxSamples || ne*nx > maxSamples/nz {
		return nil, fmt.Errorf("bad mesh size %d x %d x %d", ne, nx, nz)
	}

	w := New(
		Mesh{Start: hdr.Float(fieldEnergyStart), Step: hdr.Float(fieldEnergyStep), N: int(ne)},
		Mesh{Start: hdr.Float(fieldXStart), Step: hdr.Float(fieldXStep), N: int(nx)},
		Mesh{Start: hdr.Float(fieldZStart), Step: hdr.Float(fieldZStep), N: int(nz)},
	)
	w.RadiusX = hdr.Float(fieldRadiusX)
	w.RadiusZ = hdr.Float(fieldRadiusZ)
	w.CenterX = hdr.Float(fieldCenterX)
	w.CenterZ = hdr.Float(fieldCenterZ)

	zipReader, err := zlib.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("while opening zip reader: %w", err)
	}
	defer zipReader.Close()

	if err := binary.Read(zipReader, binary.LittleEndian, w.EX); err != nil {
		return nil, fmt.Errorf("while reading horizontal field: %w", err)
	}

	if err := binary.Read(zipReader, binary.LittleEndian, w.EZ); err != nil {
		return nil, fmt.Errorf("while reading vertical field: %w", err)
	}

	return w, nil
}

func ReadFile(name string) (*Wavefront, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("while opening file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

func Write(w *Wavefront, out io.Writer) error {
	hdr := &wirehdr.Builder{}
	hdr.Uint(fieldLayoutVersion, 1)
	hdr.Uint(fieldEnergyN, uint64(w.Energy.N))
	hdr.Uint(fieldXN, uint64(w.X.N))
	hdr.Uint(fieldZN, uint64(w.Z.N))
	hdr.Float(fieldEnergyStart, w.Energy.Start)
	hdr.Float(fieldEnergyStep, w.Energy.Step)
	hdr.Float(fieldXStart, w.X.Start)
	hdr.Float(fieldXStep, w.X.Step)
	hdr.Float(fieldZStart, w.Z.Start)
	hdr.Float(fieldZStep, w.Z.Step)
	hdr.Float(fieldRadiusX, w.RadiusX)
	hdr.Float(fieldRadiusZ, w.RadiusZ)
	hdr.Float(fieldCenterX, w.CenterX)
	hdr.Float(fieldCenterZ, w.CenterZ)

	if err := wirehdr.Write(out, hdr.Bytes()); err != nil {
		return err
	}

	zipWriter := zlib.NewWriter(out)

	if err := binary.Write(zipWriter, binary.LittleEndian, w.EX); err != nil {
		return fmt.Errorf("while writing horizontal field: %w", err)
	}

	if err := binary.Write(zipWriter, binary.LittleEndian, w.EZ); err != nil {
		return fmt.Errorf("while writing vertical field: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("while closing zip writer: %w", err)
	}

	return nil
}

func WriteFile(w *Wavefront, name string) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("while creating file: %w", err)
	}

	if err := Write(w, f); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("while closing file: %w", err)
	}
	return nil
}
