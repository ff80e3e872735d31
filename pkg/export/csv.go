package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"interscellar/internal/models"
)

// WriteNeighborsCSV writes one row per relation with the header
// cell_a,cell_b,distance,gap_volume. The gap column is empty for pairs
// missing from gaps.
func WriteNeighborsCSV(w io.Writer, relations []models.Relation, gaps map[models.Pair]float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"cell_a", "cell_b", "distance", "gap_volume"}); err != nil {
		return err
	}
	for _, r := range relations {
		p := models.NewPair(r.A, r.B)
		gap := ""
		if v, ok := gaps[p]; ok {
			gap = strconv.FormatFloat(v, 'g', -1, 64)
		}
		record := []string{
			strconv.FormatUint(uint64(p.A), 10),
			strconv.FormatUint(uint64(p.B), 10),
			strconv.FormatFloat(r.Distance, 'g', -1, 64),
			gap,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
