package sink

import (
	"encoding/json"
	"os"

	"roverscope/internal/telemetry"
)

// FileWriter writes pose and hazard rows to JSONL files.
type FileWriter struct {
	poseFile   *os.File
	hazardFile *os.File
	poseEnc    *json.Encoder
	hazardEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. hazardPath may be empty to skip hazard
// rows.
func NewFileWriter(posePath, hazardPath string) (*FileWriter, error) {
	pf, err := os.Create(posePath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{poseFile: pf, poseEnc: json.NewEncoder(pf)}
	if hazardPath != "" {
		hf, err := os.Create(hazardPath)
		if err != nil {
			pf.Close()
			return nil, err
		}
		fw.hazardFile = hf
		fw.hazardEnc = json.NewEncoder(hf)
	}
	return fw, nil
}

// WritePose logs a single pose row.
func (f *FileWriter) WritePose(row telemetry.PoseRow) error {
	return f.poseEnc.Encode(row)
}

// WriteHazard logs a single hazard row, if enabled.
func (f *FileWriter) WriteHazard(row telemetry.HazardRow) error {
	if f.hazardEnc == nil {
		return nil
	}
	return f.hazardEnc.Encode(row)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	for _, file := range []*os.File{f.poseFile, f.hazardFile} {
		if file == nil {
			continue
		}
		if e := file.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
