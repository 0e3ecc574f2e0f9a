package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/pogocls/internal/orientation"
)

// fileResult is the serialized form of one classified file.
type fileResult struct {
	File    string  `json:"file"`
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	Rotated bool    `json:"rotated"`
}

// formatBatchResults formats the results in the specified format.
func formatBatchResults(out *orientation.BatchResult, imagePaths []string, format string) (string, error) {
	if out == nil || len(out.Results) != len(imagePaths) {
		return "", fmt.Errorf("result count does not match %d input files", len(imagePaths))
	}
	switch format {
	case "json":
		return formatJSON(out, imagePaths)
	case "csv":
		return formatCSV(out, imagePaths)
	default: // text
		return formatText(out, imagePaths), nil
	}
}

func toFileResults(out *orientation.BatchResult, imagePaths []string) []fileResult {
	files := make([]fileResult, len(imagePaths))
	for i, r := range out.Results {
		files[i] = fileResult{File: imagePaths[i], Label: r.Label, Score: r.Score, Rotated: r.Rotated}
	}
	return files
}

// formatJSON formats results as JSON.
func formatJSON(out *orientation.BatchResult, imagePaths []string) (string, error) {
	doc := struct {
		Images    []fileResult `json:"images"`
		ElapsedMS float64      `json:"elapsed_ms"`
	}{
		Images:    toFileResults(out, imagePaths),
		ElapsedMS: float64(out.Elapsed.Microseconds()) / 1000,
	}
	bts, err := json.MarshalIndent(doc, "", "  ")
	return string(bts), err
}

// formatCSV formats results as CSV.
func formatCSV(out *orientation.BatchResult, imagePaths []string) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write([]string{"file", "label", "score", "rotated"}); err != nil {
		return "", err
	}
	for _, f := range toFileResults(out, imagePaths) {
		row := []string{f.File, f.Label, strconv.FormatFloat(f.Score, 'f', 4, 64), strconv.FormatBool(f.Rotated)}
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

// formatText formats results as one line per file.
func formatText(out *orientation.BatchResult, imagePaths []string) string {
	var output strings.Builder
	for _, f := range toFileResults(out, imagePaths) {
		mark := ""
		if f.Rotated {
			mark = " rotated"
		}
		output.WriteString(fmt.Sprintf("%s: %s (%.4f)%s\n", f.File, f.Label, f.Score, mark))
	}
	return output.String()
}
