package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Exporter writes report files under a data directory, mirroring the
// layout the web dashboard reads: data/csv for tabular views and
// data/json for the API document.
type Exporter struct {
	dataDir string
}

// NewExporter creates an exporter rooted at dataDir.
func NewExporter(dataDir string) *Exporter {
	return &Exporter{dataDir: dataDir}
}

// Export writes all three report files and returns their paths.
func (e *Exporter) Export(r *Report) ([]string, error) {
	channelCSV, err := e.WriteChannelCSV(r)
	if err != nil {
		return nil, err
	}
	summaryCSV, err := e.WriteSummaryCSV(r)
	if err != nil {
		return nil, err
	}
	jsonPath, err := e.WriteJSON(r)
	if err != nil {
		return nil, err
	}
	return []string{channelCSV, summaryCSV, jsonPath}, nil
}

// WriteChannelCSV writes the per-channel table.
func (e *Exporter) WriteChannelCSV(r *Report) (string, error) {
	path := filepath.Join(e.dataDir, "csv",
		fmt.Sprintf("hls_channels_final_stats_%s.csv", r.SessionID))

	rows := [][]string{{
		"channel_name",
		"total_segments",
		"successful_downloads",
		"success_rate_percent",
		"total_mb",
		"avg_download_speed_mbps",
	}}
	for _, ch := range r.Channels {
		rows = append(rows, []string{
			ch.Name,
			strconv.FormatInt(ch.Total, 10),
			strconv.FormatInt(ch.Successful, 10),
			formatFloat(ch.SuccessRate),
			formatFloat(toMB(ch.Bytes)),
			formatFloat(ch.AvgSpeedMBps),
		})
	}

	return path, writeCSV(path, rows)
}

// WriteSummaryCSV writes the single-row session summary.
func (e *Exporter) WriteSummaryCSV(r *Report) (string, error) {
	path := filepath.Join(e.dataDir, "csv",
		fmt.Sprintf("hls_global_summary_%s.csv", r.SessionID))

	rows := [][]string{
		{
			"total_channels",
			"overall_success_rate_percent",
			"total_mb",
			"duration_seconds",
		},
		{
			strconv.Itoa(r.Summary.ChannelsChecked),
			formatFloat(r.Summary.SuccessRate),
			formatFloat(toMB(r.Summary.TotalBytes)),
			formatFloat(r.Duration().Seconds()),
		},
	}

	return path, writeCSV(path, rows)
}

// apiDocument is the JSON report shape consumed by the dashboard API.
type apiDocument struct {
	Metadata struct {
		SessionID       string `json:"session_id"`
		StartTime       string `json:"start_time"`
		EndTime         string `json:"end_time"`
		DurationMinutes int    `json:"duration_minutes"`
		Status          string `json:"status"`
	} `json:"metadata"`
	GlobalStatistics struct {
		TotalChannels       int     `json:"total_channels"`
		CompletedChannels   int     `json:"completed_channels"`
		TotalSegments       int64   `json:"total_segments"`
		SuccessfulDownloads int64   `json:"successful_downloads"`
		FailedDownloads     int64   `json:"failed_downloads"`
		OverallSuccessRate  float64 `json:"overall_success_rate"`
		TotalDataMB         float64 `json:"total_data_mb"`
	} `json:"global_statistics"`
	Channels []apiChannel `json:"channels"`
	Analysis struct {
		BestChannel    string           `json:"best_channel"`
		WorstChannel   string           `json:"worst_channel"`
		ErrorBreakdown map[string]int64 `json:"error_breakdown"`
	} `json:"analysis"`
}

type apiChannel struct {
	Name  string `json:"name"`
	Stats struct {
		TotalSegments       int64   `json:"total_segments"`
		SuccessfulDownloads int64   `json:"successful_downloads"`
		FailedDownloads     int64   `json:"failed_downloads"`
		SuccessRate         float64 `json:"success_rate"`
		TotalDataMB         float64 `json:"total_data_mb"`
		AvgSpeedMBps        float64 `json:"avg_speed_mbps"`
	} `json:"stats"`
}

// WriteJSON writes the API report document.
func (e *Exporter) WriteJSON(r *Report) (string, error) {
	path := filepath.Join(e.dataDir, "json",
		fmt.Sprintf("hls_api_report_%s.json", r.SessionID))

	doc := buildAPIDocument(r)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

func buildAPIDocument(r *Report) apiDocument {
	var doc apiDocument

	doc.Metadata.SessionID = r.SessionID
	doc.Metadata.StartTime = r.Start.Format(time.RFC3339)
	doc.Metadata.EndTime = r.End.Format(time.RFC3339)
	doc.Metadata.DurationMinutes = int(r.Requested.Minutes())
	doc.Metadata.Status = r.Status

	doc.GlobalStatistics.TotalChannels = r.Summary.ChannelsChecked
	doc.GlobalStatistics.CompletedChannels = r.Summary.CompletedChannels
	doc.GlobalStatistics.TotalSegments = r.Summary.TotalSegments
	doc.GlobalStatistics.SuccessfulDownloads = r.Summary.Successful
	doc.GlobalStatistics.FailedDownloads = r.Summary.Failed
	doc.GlobalStatistics.OverallSuccessRate = r.Summary.SuccessRate
	doc.GlobalStatistics.TotalDataMB = toMB(r.Summary.TotalBytes)

	doc.Channels = make([]apiChannel, 0, len(r.Channels))
	for _, ch := range r.Channels {
		var entry apiChannel
		entry.Name = ch.Name
		entry.Stats.TotalSegments = ch.Total
		entry.Stats.SuccessfulDownloads = ch.Successful
		entry.Stats.FailedDownloads = ch.Failed
		entry.Stats.SuccessRate = ch.SuccessRate
		entry.Stats.TotalDataMB = toMB(ch.Bytes)
		entry.Stats.AvgSpeedMBps = ch.AvgSpeedMBps
		doc.Channels = append(doc.Channels, entry)
	}

	doc.Analysis.BestChannel = r.Summary.BestChannel.Name
	doc.Analysis.WorstChannel = r.Summary.WorstChannel.Name
	doc.Analysis.ErrorBreakdown = r.Summary.ErrorCounts
	if doc.Analysis.ErrorBreakdown == nil {
		doc.Analysis.ErrorBreakdown = map[string]int64{}
	}

	return doc
}

// writeCSV creates the parent directory and writes rows to path.
func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return w.Error()
}

// toMB converts bytes to decimal megabytes.
func toMB(bytes int64) float64 {
	return float64(bytes) / 1_000_000
}

// formatFloat renders a float with two decimal places, matching the
// dashboard's expectations.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
