package gridreader

import (
	"encoding/csv"
	"io"
	"os"
)

// readCSVFile reads every record of a CSV file, tolerating ragged rows
// (supplier CSV exports routinely omit trailing empty columns).
func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
